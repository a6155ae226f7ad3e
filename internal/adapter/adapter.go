// Package adapter dispatches an executable node to the CLI tool that agent
// type names (claude, claude-cli, codex, gemini) and streams back its
// output. No API keys are handled here — each CLI manages its own auth the
// same way a developer invoking it by hand would.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/dotcommander/smithers/internal/models"
)

const disableExternalAgentsEnv = "SMITHERS_DISABLE_EXTERNAL_LLM"

const maxPromptBytes = 64000

// ChunkKind distinguishes the pieces of a streamed response.
type ChunkKind string

const (
	ChunkStart ChunkKind = "start"
	ChunkDelta ChunkKind = "delta"
	ChunkEnd   ChunkKind = "end"
)

// Chunk is one piece of streamed output, delivered to the onChunk callback
// passed to Invoke as it arrives.
type Chunk struct {
	Kind ChunkKind
	Text string
	// PID is the spawned process id, set on the ChunkStart chunk only. Zero
	// for adapters (like Mock) that never spawn a subprocess.
	PID int
}

// Options configures a single dispatch.
type Options struct {
	NodeKey string
	// ContentHash is the node's current content hash, set by the engine
	// before dispatch. The cache middleware keys on this when present.
	ContentHash string
	Prompt       string
	SystemPrompt string
	Model        string
	MaxTokens    int
	WorkingDir   string
	Timeout      time.Duration
	// TimeoutExplicit distinguishes "caller set Timeout, including to zero
	// or negative" from "Timeout was never set" — the timeout middleware
	// only computes a default when this is false.
	TimeoutExplicit bool
	// SchemaJSON, when set, requires the adapter's final text to parse as
	// JSON validating against this JSON Schema document.
	SchemaJSON string
	// SchemaRetries is how many additional invocations to make, each with a
	// corrective prompt appended, when the output fails SchemaJSON validation.
	SchemaRetries int
}

// StopReason classifies how a dispatch ended.
type StopReason string

const (
	StopCompleted     StopReason = "completed"
	StopCondition     StopReason = "stop_condition"
	StopCancelled     StopReason = "cancelled"
	StopError         StopReason = "error"
)

// Result is what a dispatch produced once the underlying process exits.
// CLI adapters cannot observe a provider's real token accounting, so
// TokensIn/TokensOut are left zero unless a structured response reports
// them; the cost middleware treats zero as "unknown, skip".
type Result struct {
	Text       string
	ExitCode   int
	DurationMs int64
	Structured json.RawMessage
	TokensIn   int
	TokensOut  int
	TurnsUsed  int
	StopReason StopReason
}

// Adapter is a single agent type's CLI binding.
type Adapter interface {
	Name() string
	// Invoke runs the agent to completion, calling onChunk as output streams
	// in. onChunk may be nil. Invoke returns a models.AdapterError on any
	// non-zero exit, timeout, or malformed structured output.
	Invoke(ctx context.Context, opts Options, onChunk func(Chunk)) (Result, error)
}

func validatePrompt(s string) error {
	if len(s) == 0 {
		return errors.New("empty prompt")
	}
	if len(s) > maxPromptBytes {
		return fmt.Errorf("prompt exceeds %d byte limit (%d bytes)", maxPromptBytes, len(s))
	}
	if strings.ContainsRune(s, 0) {
		return errors.New("prompt contains null byte")
	}
	return nil
}

// cliAdapter is the shared implementation behind the claude/codex/gemini
// adapters: build argv from an agent-specific template, run it under a
// timeout, stream stdout line-by-line, and optionally validate the final
// text against a JSON Schema.
type cliAdapter struct {
	name    string
	command string
	argv    func(opts Options) []string
}

func (c *cliAdapter) Name() string { return c.name }

func (c *cliAdapter) Invoke(ctx context.Context, opts Options, onChunk func(Chunk)) (Result, error) {
	if strings.TrimSpace(os.Getenv(disableExternalAgentsEnv)) != "" {
		return Result{}, &models.AdapterError{
			AgentName: c.name,
			NodeKey:   opts.NodeKey,
			Reason:    fmt.Sprintf("external agent execution disabled by %s", disableExternalAgentsEnv),
		}
	}
	if _, err := exec.LookPath(c.command); err != nil {
		return Result{}, &models.AdapterError{
			AgentName: c.name,
			NodeKey:   opts.NodeKey,
			Reason:    fmt.Sprintf("cli tool %q not found in PATH", c.command),
		}
	}

	attemptOpts := opts
	var result Result
	var err error
	for attempt := 0; attempt <= opts.SchemaRetries; attempt++ {
		result, err = c.runOnce(ctx, attemptOpts, onChunk)
		var validationErr *models.ValidationError
		if err == nil || !errors.As(err, &validationErr) {
			return result, err
		}
		if attempt == opts.SchemaRetries {
			result.StopReason = StopError
			return result, &models.AdapterError{AgentName: c.name, NodeKey: opts.NodeKey, Reason: validationErr.Error()}
		}
		attemptOpts.Prompt = opts.Prompt + "\n\nYour previous response did not validate against the required schema: " + validationErr.Reason + "\nRespond again with valid JSON only."
	}
	return result, err
}

func (c *cliAdapter) runOnce(ctx context.Context, opts Options, onChunk func(Chunk)) (Result, error) {
	if err := validatePrompt(opts.Prompt); err != nil {
		return Result{}, &models.AdapterError{AgentName: c.name, NodeKey: opts.NodeKey, Reason: err.Error()}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	args := c.argv(opts)
	cmd := exec.CommandContext(ctx, c.command, args...) //nolint:gosec // G204: command is a fixed agent CLI name, args are templated, not user shell input
	cmd.Env = os.Environ()
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, &models.AdapterError{AgentName: c.name, NodeKey: opts.NodeKey, Reason: err.Error()}
	}
	stderrW := &limitedWriter{maxBytes: 4096}
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		return Result{}, &models.AdapterError{AgentName: c.name, NodeKey: opts.NodeKey, Reason: err.Error()}
	}

	if onChunk != nil {
		onChunk(Chunk{Kind: ChunkStart, PID: cmd.Process.Pid})
	}

	var out bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
			if onChunk != nil {
				onChunk(Chunk{Kind: ChunkDelta, Text: string(buf[:n])})
			}
		}
		if readErr != nil {
			break
		}
	}

	waitErr := cmd.Wait()
	duration := time.Since(start)

	if onChunk != nil {
		onChunk(Chunk{Kind: ChunkEnd})
	}

	exitCode := 0
	if waitErr != nil {
		exitCode = exitCodeOf(waitErr)
		if ctx.Err() == context.DeadlineExceeded {
			return Result{ExitCode: exitCode, DurationMs: duration.Milliseconds(), StopReason: StopError}, &models.AdapterError{
				AgentName: c.name, NodeKey: opts.NodeKey,
				Reason: fmt.Sprintf("timed out after %s", opts.Timeout), ExitCode: exitCode,
			}
		}
		if ctx.Err() == context.Canceled {
			return Result{ExitCode: exitCode, DurationMs: duration.Milliseconds(), StopReason: StopCancelled}, &models.AdapterError{
				AgentName: c.name, NodeKey: opts.NodeKey,
				Reason: "cancelled", ExitCode: exitCode,
			}
		}
		stderrMsg := stderrW.buf.String()
		if stderrW.buf.Len() >= stderrW.maxBytes {
			stderrMsg += " (truncated)"
		}
		return Result{ExitCode: exitCode, DurationMs: duration.Milliseconds(), StopReason: StopError}, &models.AdapterError{
			AgentName: c.name, NodeKey: opts.NodeKey,
			Reason: fmt.Sprintf("%s (stderr: %s)", waitErr, stderrMsg), ExitCode: exitCode,
		}
	}

	text := strings.TrimSpace(out.String())
	result := Result{Text: text, ExitCode: 0, DurationMs: duration.Milliseconds(), StopReason: StopCompleted}

	if opts.SchemaJSON != "" {
		structured, err := validateStructured(opts.NodeKey, c.name, text, opts.SchemaJSON)
		if err != nil {
			return result, err
		}
		result.Structured = structured
	}

	return result, nil
}

func validateStructured(nodeKey, agentName, text, schemaJSON string) (json.RawMessage, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("inline.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, &models.ValidationError{NodeKey: nodeKey, Schema: schemaJSON, Reason: fmt.Sprintf("invalid schema: %s", err)}
	}
	schema, err := compiler.Compile("inline.json")
	if err != nil {
		return nil, &models.ValidationError{NodeKey: nodeKey, Schema: schemaJSON, Reason: fmt.Sprintf("invalid schema: %s", err)}
	}

	var instance any
	if err := json.Unmarshal([]byte(text), &instance); err != nil {
		return nil, &models.ValidationError{NodeKey: nodeKey, Schema: schemaJSON, Reason: fmt.Sprintf("%s output is not valid JSON: %s", agentName, err)}
	}
	if err := schema.Validate(instance); err != nil {
		return nil, &models.ValidationError{NodeKey: nodeKey, Schema: schemaJSON, Reason: err.Error()}
	}
	return json.RawMessage(text), nil
}

func exitCodeOf(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// limitedWriter caps writes at maxBytes, silently discarding overflow. This
// keeps a misbehaving CLI's stderr from growing an unbounded buffer.
type limitedWriter struct {
	buf      bytes.Buffer
	maxBytes int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	originalLen := len(p)
	remaining := w.maxBytes - w.buf.Len()
	if remaining <= 0 {
		return originalLen, nil
	}
	if len(p) > remaining {
		p = p[:remaining]
	}
	w.buf.Write(p)
	return originalLen, nil
}
