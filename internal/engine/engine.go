// Package engine runs the frame loop: render the plan tree, act on whatever
// control-flow node appears first (stop, human, review), dispatch every
// executable node whose content hash changed since its last run, and repeat
// until the tree naturally empties or a termination condition fires.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dotcommander/smithers/internal/adapter"
	"github.com/dotcommander/smithers/internal/debugbus"
	"github.com/dotcommander/smithers/internal/human"
	"github.com/dotcommander/smithers/internal/middleware"
	"github.com/dotcommander/smithers/internal/models"
	"github.com/dotcommander/smithers/internal/objectstore"
	"github.com/dotcommander/smithers/internal/plan"
	"github.com/dotcommander/smithers/internal/review"
	"github.com/dotcommander/smithers/internal/state"
	"github.com/dotcommander/smithers/internal/store"
)

// Termination reasons a Result carries, matching the store's execution
// status values one level down in granularity.
const (
	ReasonStopNode       = "stop_node"
	ReasonReviewRejected = "review_rejected"
	ReasonMaxFrames      = "max_frames"
	ReasonTimeout        = "timeout"
	ReasonEmptyTree      = "empty_tree"
	ReasonCancelled      = "cancelled"
	ReasonError          = "error"
)

// defaultMaxFrames bounds runaway loops when the caller sets no limit.
const defaultMaxFrames = 500

// defaultParallelism bounds how many nodes dispatch concurrently within one
// frame when the caller sets no limit.
const defaultParallelism = 3

// Render is the caller-supplied function that (re)builds the plan tree for
// the next frame, typically by re-evaluating an agent file against the
// current state snapshot.
type Render func(ctx context.Context) (*plan.Node, error)

// Options configures one ExecutePlan run.
type Options struct {
	ExecutionID string
	MaxFrames   int
	Timeout     time.Duration
	Parallelism int
	Model       string
	MaxTokens   int
	// OnFrameUpdate, if set, is called once per frame with the freshly
	// rendered tree, before control-flow handling (stop, human, review) and
	// dispatch.
	OnFrameUpdate func(tree *plan.Node, frame int)
}

// Result is what ExecutePlan returns once the loop terminates.
type Result struct {
	Output        string
	Frames        int
	TotalDuration time.Duration
	Reason        string
	Error         error
}

// Engine wires together every collaborator the frame loop needs: the store,
// its reactor, state, the human and review gates, the adapter registry, a
// middleware pipeline applied to every dispatch, and a debug bus.
type Engine struct {
	db       *sql.DB
	reactor  *store.Reactor
	state    *state.Manager
	humans   *human.Coordinator
	reviews  *review.Gate
	adapters *adapter.Registry
	pipeline *middleware.Pipeline
	bus      *debugbus.Bus
	logger   *slog.Logger
	// objects is where a node's output lands when it's too large to inline
	// in the tool_calls row (see internal/store.ResolveToolCallOutput). May
	// be nil, in which case oversized output is summarized but not
	// persisted to disk.
	objects *objectstore.Store

	mu      sync.Mutex
	tailLog map[string][]string
}

// New builds an Engine. pipeline may be nil, in which case dispatch calls
// the resolved adapter directly with no retry, timeout, or caching stages.
// objects may be nil.
func New(
	db *sql.DB,
	reactor *store.Reactor,
	stateManager *state.Manager,
	humans *human.Coordinator,
	reviews *review.Gate,
	adapters *adapter.Registry,
	pipeline *middleware.Pipeline,
	bus *debugbus.Bus,
	logger *slog.Logger,
	objects *objectstore.Store,
) *Engine {
	if pipeline == nil {
		pipeline = middleware.Compose()
	}
	if bus == nil {
		bus = debugbus.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		db: db, reactor: reactor, state: stateManager, humans: humans,
		reviews: reviews, adapters: adapters, pipeline: pipeline, bus: bus,
		logger: logger, objects: objects, tailLog: make(map[string][]string),
	}
}

// TailLog returns the buffered streamed-output tail for a node key, for
// inspection tooling. Only lines kept by the throttled
// ring buffer during dispatch are present.
func (e *Engine) TailLog(nodeKey string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	lines := e.tailLog[nodeKey]
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

// ExecutePlan drives the frame loop for one execution until termination.
func (e *Engine) ExecutePlan(ctx context.Context, render Render, opts Options) (*Result, error) {
	maxFrames := opts.MaxFrames
	if maxFrames <= 0 {
		maxFrames = defaultMaxFrames
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	start := time.Now()
	e.bus.Emit(debugbus.Event{Type: debugbus.EventSessionStart, SessionID: opts.ExecutionID, Timestamp: start})

	var lastOutput string
	frame := 0
	for {
		frame++

		if ctx.Err() != nil {
			return e.terminate(opts.ExecutionID, frame, start, ReasonCancelled, lastOutput, ctx.Err())
		}
		if frame > maxFrames {
			return e.terminate(opts.ExecutionID, frame-1, start, ReasonMaxFrames, lastOutput, nil)
		}
		if opts.Timeout > 0 && time.Since(start) > opts.Timeout {
			return e.terminate(opts.ExecutionID, frame-1, start, ReasonTimeout, lastOutput, nil)
		}

		tree, err := render(ctx)
		if err != nil {
			return e.terminate(opts.ExecutionID, frame-1, start, ReasonError, lastOutput, fmt.Errorf("render frame %d: %w", frame, err))
		}
		if err := plan.ValidateTree(tree); err != nil {
			return e.terminate(opts.ExecutionID, frame-1, start, ReasonError, lastOutput, err)
		}
		if n := plan.DetectWarnings(tree); n > 0 {
			e.logger.Warn("agent file produced misplaced nodes", "count", n, "frame", frame)
		}

		hash := plan.ContentHash(tree)
		if _, err := store.RecordRenderFrame(e.db, opts.ExecutionID, frame, hash, plan.Serialize(tree)); err != nil {
			e.logger.Warn("record render frame failed", "error", err)
		}
		if err := store.IncrementFrames(e.db, opts.ExecutionID); err != nil {
			e.logger.Warn("increment frame counter failed", "error", err)
		}

		e.bus.Emit(debugbus.Event{Type: debugbus.EventFrameStart, SessionID: opts.ExecutionID, Frame: frame, Timestamp: time.Now()})
		snapshot := debugbus.Snapshot(tree)
		e.bus.Emit(debugbus.Event{Type: debugbus.EventTreeUpdate, SessionID: opts.ExecutionID, Frame: frame, Timestamp: time.Now(), Tree: &snapshot})
		if opts.OnFrameUpdate != nil {
			opts.OnFrameUpdate(tree, frame)
		}

		if stopNode := findFirst(tree, (*plan.Node).IsStop); stopNode != nil {
			reason, _ := stopNode.Props["reason"].(string)
			return e.terminate(opts.ExecutionID, frame, start, ReasonStopNode, reason, nil)
		}

		if humanNode := findFirst(tree, (*plan.Node).IsHuman); humanNode != nil {
			if err := e.resolveHuman(ctx, opts.ExecutionID, humanNode); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return e.terminate(opts.ExecutionID, frame, start, ReasonCancelled, lastOutput, err)
				}
				return e.terminate(opts.ExecutionID, frame, start, ReasonError, lastOutput, err)
			}
			continue
		}

		if rejection, err := e.resolveReviews(ctx, opts.ExecutionID, tree, opts.Model); err != nil {
			return e.terminate(opts.ExecutionID, frame, start, ReasonError, lastOutput, err)
		} else if rejection != nil {
			return e.terminate(opts.ExecutionID, frame, start, ReasonReviewRejected, lastOutput, rejection)
		}

		executables := findAll(tree, (*plan.Node).IsExecutable)
		if len(executables) == 0 {
			return e.terminate(opts.ExecutionID, frame, start, ReasonEmptyTree, lastOutput, nil)
		}

		toDispatch, err := e.nodesNeedingDispatch(opts.ExecutionID, executables)
		if err != nil {
			return e.terminate(opts.ExecutionID, frame, start, ReasonError, lastOutput, err)
		}

		var phaseID string
		if len(toDispatch) > 0 {
			phaseID, err = store.CreatePhase(e.db, opts.ExecutionID, fmt.Sprintf("frame-%d", frame), frame)
			if err != nil {
				e.logger.Warn("create phase failed", "frame", frame, "error", err)
			}
		}

		outputs, dispatchErr := e.dispatchAll(ctx, opts.ExecutionID, phaseID, toDispatch, opts, parallelism)
		if phaseID != "" {
			if err := store.CompletePhase(e.db, phaseID, len(toDispatch)); err != nil {
				e.logger.Warn("complete phase failed", "phase_id", phaseID, "error", err)
			}
		}
		for _, o := range outputs {
			if o != "" {
				lastOutput = o
			}
		}
		e.bus.Emit(debugbus.Event{Type: debugbus.EventFrameEnd, SessionID: opts.ExecutionID, Frame: frame, Timestamp: time.Now()})
		if dispatchErr != nil {
			if errors.Is(dispatchErr, context.Canceled) || errors.Is(dispatchErr, context.DeadlineExceeded) {
				return e.terminate(opts.ExecutionID, frame, start, ReasonCancelled, lastOutput, dispatchErr)
			}
			return e.terminate(opts.ExecutionID, frame, start, ReasonError, lastOutput, dispatchErr)
		}
	}
}

func (e *Engine) terminate(executionID string, frames int, start time.Time, reason, output string, err error) (*Result, error) {
	if reason == ReasonCancelled && err != nil {
		if _, already := err.(*models.CancellationError); !already {
			err = &models.CancellationError{Reason: err.Error()}
		}
	}
	duration := time.Since(start)
	e.bus.Emit(debugbus.Event{
		Type: debugbus.EventLoopTerminated, SessionID: executionID, Timestamp: time.Now(),
		Frame: frames, Reason: reason,
	})
	e.bus.Emit(debugbus.Event{Type: debugbus.EventSessionEnd, SessionID: executionID, Timestamp: time.Now()})

	status := store.ExecutionStatusCompleted
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	switch reason {
	case ReasonError:
		status = store.ExecutionStatusFailed
	case ReasonCancelled:
		status = store.ExecutionStatusCancelled
	case ReasonReviewRejected:
		status = store.ExecutionStatusFailed
	}
	if finishErr := store.FinishExecution(e.db, executionID, status, output, errMsg); finishErr != nil {
		e.logger.Warn("finish execution failed", "error", finishErr)
	}

	return &Result{Output: output, Frames: frames, TotalDuration: duration, Reason: reason, Error: err}, nil
}

func (e *Engine) resolveHuman(ctx context.Context, executionID string, node *plan.Node) error {
	nodeKey := plan.NodePath(node)
	question, _ := node.Props["question"].(string)
	if question == "" {
		question, _ = node.Props["prompt"].(string)
	}
	_, err := e.humans.AskForNode(ctx, executionID, nodeKey, question)
	return err
}

func (e *Engine) resolveReviews(ctx context.Context, executionID string, tree *plan.Node, model string) (*models.ReviewRejection, error) {
	for _, node := range findAll(tree, (*plan.Node).IsReview) {
		nodeKey := plan.NodePath(node)
		existing, err := store.LatestReviewByNodeKey(e.db, executionID, nodeKey)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Approved != nil {
			continue
		}

		target, _ := node.Props["target"].(string)
		if target == "" {
			target = string(review.TargetDiff)
		}
		content, _ := node.Props["content"].(string)
		blocking := true
		if v, ok := node.Props["blocking"].(bool); ok {
			blocking = v
		}
		nodeModel, _ := node.Props["model"].(string)
		if nodeModel == "" {
			nodeModel = model
		}

		_, _, err = e.reviews.Run(ctx, review.Request{
			ExecutionID: executionID, NodeKey: nodeKey, Target: review.Target(target),
			Content: content, Blocking: blocking, Model: nodeModel,
		})
		if err != nil {
			var rejection *models.ReviewRejection
			if errors.As(err, &rejection) {
				return rejection, nil
			}
			return nil, err
		}
	}
	return nil, nil
}

// nodesNeedingDispatch filters executables down to those whose cached state
// is absent, pending, or whose content hash has changed since it last ran.
func (e *Engine) nodesNeedingDispatch(executionID string, executables []*plan.Node) ([]*plan.Node, error) {
	var out []*plan.Node
	for _, node := range executables {
		nodeKey := plan.NodePath(node)
		hash := plan.ContentHash(node)
		agent, err := store.LatestAgentByNodeKey(e.db, executionID, nodeKey)
		if err != nil {
			return nil, err
		}
		st := stateFromAgent(agent)
		if st.NeedsDispatch(hash) {
			out = append(out, node)
		}
	}
	return out, nil
}

func stateFromAgent(a *store.Agent) *plan.State {
	if a == nil {
		return nil
	}
	status := plan.NodeStatusPending
	switch a.Status {
	case store.AgentStatusRunning:
		status = plan.NodeStatusRunning
	case store.AgentStatusCompleted:
		status = plan.NodeStatusComplete
	case store.AgentStatusError:
		status = plan.NodeStatusError
	}
	return &plan.State{Status: status, Result: a.Result, Error: a.Error, ContentHash: a.ContentHash}
}


func findFirst(n *plan.Node, match func(*plan.Node) bool) *plan.Node {
	if n == nil {
		return nil
	}
	if match(n) {
		return n
	}
	for _, c := range n.Children {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *plan.Node, match func(*plan.Node) bool) []*plan.Node {
	var out []*plan.Node
	var walk func(*plan.Node)
	walk = func(cur *plan.Node) {
		if cur == nil {
			return
		}
		if match(cur) {
			out = append(out, cur)
		}
		for _, c := range cur.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}
