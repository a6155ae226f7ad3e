package models

import "fmt"

// RecoverableError is implemented by enriched errors that carry structured
// context and remediation hints. Both the store and output packages use this
// interface to avoid an import cycle.
type RecoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}

// UsageError reports a bad CLI flag, bad config value, or unsupported agent
// file extension. Never retried.
type UsageError struct {
	Flag   string
	Reason string
}

func (e *UsageError) Error() string { return fmt.Sprintf("usage error: %s: %s", e.Flag, e.Reason) }
func (e *UsageError) ErrorCode() string { return "USAGE_ERROR" }
func (e *UsageError) Context() map[string]string {
	return map[string]string{"flag": e.Flag, "reason": e.Reason}
}
func (e *UsageError) SuggestedAction() string { return "run with --help to see valid flags" }

// LoadError reports failure to parse or evaluate an agent file, with
// position information when the underlying parser supplies it.
type LoadError struct {
	Path   string
	Line   int
	Column int
	Reason string
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}
func (e *LoadError) ErrorCode() string { return "LOAD_ERROR" }
func (e *LoadError) Context() map[string]string {
	return map[string]string{
		"path":   e.Path,
		"line":   fmt.Sprintf("%d", e.Line),
		"column": fmt.Sprintf("%d", e.Column),
		"reason": e.Reason,
	}
}
func (e *LoadError) SuggestedAction() string { return "fix the syntax error and rerun" }

// AdapterError reports a child agent process that failed, crashed, or timed
// out. Maps to stopReason=error on the agent row.
type AdapterError struct {
	AgentName string
	NodeKey   string
	Reason    string
	ExitCode  int
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s (node %s) failed: %s", e.AgentName, e.NodeKey, e.Reason)
}
func (e *AdapterError) ErrorCode() string { return "ADAPTER_ERROR" }
func (e *AdapterError) Context() map[string]string {
	return map[string]string{
		"agent_name": e.AgentName,
		"node_key":   e.NodeKey,
		"reason":     e.Reason,
		"exit_code":  fmt.Sprintf("%d", e.ExitCode),
	}
}
func (e *AdapterError) SuggestedAction() string { return "inspect the agent's stderr and retry the node" }

// ValidationError reports structured output that failed schema validation.
// Retried by the CLI adapter up to schemaRetries; once those are exhausted
// the adapter returns it wrapped in an AdapterError.
type ValidationError struct {
	NodeKey string
	Schema  string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("node %s: output failed schema %s: %s", e.NodeKey, e.Schema, e.Reason)
}
func (e *ValidationError) ErrorCode() string { return "VALIDATION_ERROR" }
func (e *ValidationError) Context() map[string]string {
	return map[string]string{"node_key": e.NodeKey, "schema": e.Schema, "reason": e.Reason}
}
func (e *ValidationError) SuggestedAction() string { return "relax the schema or correct the prompt" }

// ReviewRejection reports a blocking review gate that returned approved=false.
// Terminates the execution loop.
type ReviewRejection struct {
	NodeKey string
	Reason  string
}

func (e *ReviewRejection) Error() string {
	return fmt.Sprintf("review rejected at node %s: %s", e.NodeKey, e.Reason)
}
func (e *ReviewRejection) ErrorCode() string { return "REVIEW_REJECTED" }
func (e *ReviewRejection) Context() map[string]string {
	return map[string]string{"node_key": e.NodeKey, "reason": e.Reason}
}
func (e *ReviewRejection) SuggestedAction() string { return "address the review feedback and rerun" }

// CancellationError reports that an external signal terminated the run
// before it reached a natural stop.
type CancellationError struct {
	Reason string
}

func (e *CancellationError) Error() string { return fmt.Sprintf("cancelled: %s", e.Reason) }
func (e *CancellationError) ErrorCode() string { return "CANCELLATION" }
func (e *CancellationError) Context() map[string]string {
	return map[string]string{"reason": e.Reason}
}
func (e *CancellationError) SuggestedAction() string { return "rerun once the cancellation trigger is resolved" }

// BudgetExhaustedError reports that maxFrames or the run timeout elapsed
// before the tree reached a stop node.
type BudgetExhaustedError struct {
	Reason   string // "max_frames" or "timeout"
	Frames   int
	Elapsed  string
}

func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("budget exhausted (%s) after %d frames, %s elapsed", e.Reason, e.Frames, e.Elapsed)
}
func (e *BudgetExhaustedError) ErrorCode() string { return "BUDGET_EXHAUSTED" }
func (e *BudgetExhaustedError) Context() map[string]string {
	return map[string]string{
		"reason":  e.Reason,
		"frames":  fmt.Sprintf("%d", e.Frames),
		"elapsed": e.Elapsed,
	}
}
func (e *BudgetExhaustedError) SuggestedAction() string {
	return "increase --max-frames or --timeout, or add a stop node"
}
