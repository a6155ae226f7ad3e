package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dotcommander/smithers/internal/adapter"
	"github.com/dotcommander/smithers/internal/debugbus"
	"github.com/dotcommander/smithers/internal/plan"
	"github.com/dotcommander/smithers/internal/store"
)

// tailLogThrottle bounds how often a streamed chunk is appended to a node's
// inspectable tail log; the stream itself is not throttled, only the copy
// kept for Engine.TailLog.
const tailLogThrottle = 100 * time.Millisecond

// tailLogMaxLines caps the ring buffer per node so a chatty agent can't grow
// memory unbounded over a long run.
const tailLogMaxLines = 200

// dispatchAll runs every node in toDispatch through the middleware pipeline
// with bounded parallelism, collecting each node's final text. A single
// node's failure does not abort its siblings; the first error encountered
// is returned alongside whatever outputs did complete.
func (e *Engine) dispatchAll(ctx context.Context, executionID, phaseID string, toDispatch []*plan.Node, opts Options, parallelism int) ([]string, error) {
	if len(toDispatch) == 0 {
		return nil, nil
	}

	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup
	var mu sync.Mutex
	outputs := make([]string, len(toDispatch))
	var firstErr error

	for i, node := range toDispatch {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, n *plan.Node) {
			defer wg.Done()
			defer func() { <-sem }()

			out, err := e.dispatchNode(ctx, executionID, phaseID, n, opts)
			mu.Lock()
			outputs[i] = out
			if err != nil && firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
		}(i, node)
	}
	wg.Wait()
	return outputs, firstErr
}

// dispatchNode sends a single executable node through the resolved adapter,
// wrapped by the engine's middleware pipeline, and records the outcome.
func (e *Engine) dispatchNode(ctx context.Context, executionID, phaseID string, node *plan.Node, opts Options) (string, error) {
	nodeKey := plan.NodePath(node)
	hash := plan.ContentHash(node)

	prompt, _ := node.Props["prompt"].(string)
	if prompt == "" {
		prompt = node.TextValue()
	}
	systemPrompt, _ := node.Props["systemPrompt"].(string)
	model, _ := node.Props["model"].(string)
	if model == "" {
		model = opts.Model
	}
	schemaJSON, _ := node.Props["outputSchema"].(string)
	maxTokens := opts.MaxTokens
	if v, ok := node.Props["maxTokens"].(float64); ok && v > 0 {
		maxTokens = int(v)
	}

	agentID, err := store.DispatchAgent(e.db, node.Type, hash, executionID, phaseID, nodeKey, model, systemPrompt, prompt, hash)
	if err != nil {
		return "", fmt.Errorf("dispatch agent %s: %w", nodeKey, err)
	}

	e.bus.Emit(debugbus.Event{Type: debugbus.EventNodeExecuteStart, SessionID: executionID, NodeKey: nodeKey, Timestamp: time.Now()})

	impl, err := e.adapters.Resolve(node.Type)
	if err != nil {
		_ = store.FailAgent(e.db, agentID, err.Error())
		e.bus.Emit(debugbus.Event{Type: debugbus.EventNodeExecuteEnd, SessionID: executionID, NodeKey: nodeKey, Timestamp: time.Now(), Message: err.Error()})
		return "", err
	}

	adapterOpts := adapter.Options{
		NodeKey:       nodeKey,
		ContentHash:   hash,
		Prompt:        prompt,
		SystemPrompt:  systemPrompt,
		Model:         model,
		MaxTokens:     maxTokens,
		SchemaJSON:    schemaJSON,
		SchemaRetries: 2,
	}

	toolCallID, err := store.RecordToolCallStarted(e.db, agentID, executionID, node.Type, prompt)
	if err != nil {
		e.logger.Warn("record tool call start failed", "node_key", nodeKey, "error", err)
	}

	tailAppender := e.tailLogAppender(nodeKey)
	var taskID string
	onProgress := func(c adapter.Chunk) {
		if c.Kind == adapter.ChunkStart && c.PID > 0 {
			if id, err := store.RegisterTask(e.db, executionID, agentID, node.Type, c.PID); err == nil {
				taskID = id
			}
		}
		tailAppender(c)
	}
	result, dispatchErr := e.pipeline.Execute(ctx, adapterOpts, onProgress, impl.Invoke)
	if taskID != "" {
		_ = store.CompleteTask(e.db, taskID)
	}

	if dispatchErr != nil {
		_ = store.FailAgent(e.db, agentID, dispatchErr.Error())
		_, _ = store.AppendReport(e.db, executionID, agentID, "node failed", dispatchErr.Error())
		if toolCallID != "" {
			_ = store.FailToolCall(e.db, toolCallID, dispatchErr.Error())
		}
		e.bus.Emit(debugbus.Event{Type: debugbus.EventNodeExecuteEnd, SessionID: executionID, NodeKey: nodeKey, Timestamp: time.Now(), Message: dispatchErr.Error()})
		return "", dispatchErr
	}

	if err := store.CompleteAgent(e.db, agentID, result.Text, string(result.Structured), result.TokensIn, result.TokensOut, 0); err != nil {
		e.logger.Warn("complete agent failed", "node_key", nodeKey, "error", err)
	}

	if toolCallID != "" {
		var objPath, objHash string
		if e.objects != nil && result.Text != "" {
			if objHash, objPath, err = e.objects.Put([]byte(result.Text)); err != nil {
				e.logger.Warn("objectstore put failed", "node_key", nodeKey, "error", err)
				objPath, objHash = "", ""
			}
		}
		out := store.ResolveToolCallOutput(result.Text, objPath, objHash, summarize(result.Text))
		if err := store.CompleteToolCall(e.db, toolCallID, out); err != nil {
			e.logger.Warn("complete tool call failed", "node_key", nodeKey, "error", err)
		}
	}

	if artifactName, _ := node.Props["artifact"].(string); artifactName != "" && result.Text != "" {
		contentHash := strconv.FormatUint(xxhash.Sum64String(result.Text), 16)
		if _, err := store.RecordArtifact(e.db, executionID, agentID, artifactName, "", contentHash, int64(len(result.Text))); err != nil {
			e.logger.Warn("record artifact failed", "node_key", nodeKey, "artifact", artifactName, "error", err)
		}
	}

	e.bus.Emit(debugbus.Event{Type: debugbus.EventNodeExecuteEnd, SessionID: executionID, NodeKey: nodeKey, Timestamp: time.Now()})
	return result.Text, nil
}

// summarizeMaxBytes bounds the preview stored alongside an object-stored
// tool-call output, so the tool_calls row stays cheap to list even when the
// full output lives on disk.
const summarizeMaxBytes = 500

func summarize(text string) string {
	if len(text) <= summarizeMaxBytes {
		return text
	}
	return text[:summarizeMaxBytes] + "..."
}

// tailLogAppender returns an onChunk callback that throttles writes into the
// node's tail-log ring buffer; the underlying stream to a caller-supplied
// onProgress is not implemented here since ExecutePlan's caller observes
// output through debug bus events and the final Result instead.
func (e *Engine) tailLogAppender(nodeKey string) func(adapter.Chunk) {
	var last time.Time
	return func(c adapter.Chunk) {
		if c.Kind != adapter.ChunkDelta || c.Text == "" {
			return
		}
		now := time.Now()
		if now.Sub(last) < tailLogThrottle {
			return
		}
		last = now

		e.mu.Lock()
		defer e.mu.Unlock()
		lines := append(e.tailLog[nodeKey], c.Text)
		if len(lines) > tailLogMaxLines {
			lines = lines[len(lines)-tailLogMaxLines:]
		}
		e.tailLog[nodeKey] = lines
	}
}
