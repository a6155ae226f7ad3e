package test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/smithers/internal/adapter"
	"github.com/dotcommander/smithers/internal/engine"
	"github.com/dotcommander/smithers/internal/middleware"
	"github.com/dotcommander/smithers/internal/models"
	"github.com/dotcommander/smithers/internal/plan"
	"github.com/dotcommander/smithers/internal/store"
)

// TestTwoPhaseArithmetic: a node tree that rebuilds itself across frames,
// feeding one node's result into the next node's prompt, terminating via a
// stop node once both steps have run.
func TestTwoPhaseArithmetic(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.Responses["/claude:step1"] = adapter.Result{Text: "4"}
	h.mock.Responses["/claude:step2"] = adapter.Result{Text: "8"}

	render := func(ctx context.Context) (*plan.Node, error) {
		step1 := latestAgent(t, h, "/claude:step1")
		if !isComplete(step1) {
			return root(claudeNode("step1", "2+2")), nil
		}
		step2 := latestAgent(t, h, "/claude:step2")
		if !isComplete(step2) {
			return root(claudeNode("step2", fmt.Sprintf("%s+4", step1.Result))), nil
		}
		return root(stopNode(step2.Result)), nil
	}

	result := h.run(render, engine.Options{MaxFrames: 5})
	require.Equal(t, engine.ReasonStopNode, result.Reason)
	require.Equal(t, "8", result.Output)
	require.Equal(t, 3, result.Frames)
	require.Len(t, h.mock.Calls, 2)
}

// TestStopMarkerShortCircuit: a stop node present in the very first frame
// terminates before any executable node is even considered for dispatch.
func TestStopMarkerShortCircuit(t *testing.T) {
	h := newHarness(t, nil)

	render := func(ctx context.Context) (*plan.Node, error) {
		return root(stopNode("done")), nil
	}

	result := h.run(render, engine.Options{MaxFrames: 5})
	require.Equal(t, engine.ReasonStopNode, result.Reason)
	require.Equal(t, "done", result.Output)
	require.Equal(t, 1, result.Frames)
	require.Empty(t, h.mock.Calls)
}

// TestHumanGate: a human node suspends the loop until an external answer
// lands in human_interactions; the next frame observes the resolution and
// moves on.
func TestHumanGate(t *testing.T) {
	h := newHarness(t, nil)

	render := func(ctx context.Context) (*plan.Node, error) {
		hi, err := store.LatestHumanInteractionByNodeKey(h.db, h.execID, "/human:gate")
		if err != nil {
			return nil, err
		}
		if hi == nil || hi.Status == store.HumanInteractionStatusPending {
			return root(humanNode("gate", "continue?")), nil
		}
		return root(stopNode("resumed:" + hi.Answer)), nil
	}

	resultCh := make(chan *engine.Result, 1)
	go func() { resultCh <- h.run(render, engine.Options{MaxFrames: 5}) }()

	require.Eventually(t, func() bool {
		pending, err := store.PendingHumanInteractions(h.db, h.execID)
		return err == nil && len(pending) == 1
	}, 2*time.Second, 5*time.Millisecond)

	pending, err := store.PendingHumanInteractions(h.db, h.execID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, store.ResolveHuman(context.Background(), h.reactor, h.execID, pending[0].ID, store.HumanInteractionStatusAnswered, "yes"))

	select {
	case result := <-resultCh:
		require.Equal(t, engine.ReasonStopNode, result.Reason)
		require.Equal(t, "resumed:yes", result.Output)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not resume after human answer")
	}
}

// TestBlockingReviewRejection: a blocking review node whose verdict comes
// back approved=false terminates the loop with the rejection as the error.
func TestBlockingReviewRejection(t *testing.T) {
	h := newHarness(t, nil)
	verdict := `{"approved":false,"summary":"rejected: contains secrets","issues":[]}`
	h.mock.Responses["/review:check"] = adapter.Result{Structured: json.RawMessage(verdict)}

	render := func(ctx context.Context) (*plan.Node, error) {
		return root(reviewNode("check", "diff contents", true)), nil
	}

	result := h.run(render, engine.Options{MaxFrames: 5})
	require.Equal(t, engine.ReasonReviewRejected, result.Reason)
	require.Equal(t, 1, result.Frames)

	var rejection *models.ReviewRejection
	require.True(t, errors.As(result.Error, &rejection))
	require.Equal(t, "rejected: contains secrets", rejection.Reason)
}

// TestMemoisationAcrossFrames: a node whose content hash never changes is
// dispatched exactly once, even though the loop keeps re-rendering it every
// frame up to the frame ceiling.
func TestMemoisationAcrossFrames(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.Responses["/claude:fixed"] = adapter.Result{Text: "42"}

	render := func(ctx context.Context) (*plan.Node, error) {
		return root(claudeNode("fixed", "same prompt every frame")), nil
	}

	result := h.run(render, engine.Options{MaxFrames: 3})
	require.Equal(t, engine.ReasonMaxFrames, result.Reason)
	require.Equal(t, 3, result.Frames)
	require.Len(t, h.mock.Calls, 1)
}

// flakyAdapter fails its first N invocations, then succeeds, exercising the
// retry middleware's backoff-and-retry behavior against a real Engine
// dispatch rather than testing the middleware in isolation.
type flakyAdapter struct {
	failures int
	calls    int
}

func (f *flakyAdapter) Name() string { return "flaky" }

func (f *flakyAdapter) Invoke(_ context.Context, _ adapter.Options, _ func(adapter.Chunk)) (adapter.Result, error) {
	f.calls++
	if f.calls <= f.failures {
		return adapter.Result{StopReason: adapter.StopError}, fmt.Errorf("transient failure on attempt %d", f.calls)
	}
	return adapter.Result{Text: "ok", StopReason: adapter.StopCompleted}, nil
}

// TestRetryOnTransientAdapterFailure: two failures followed by a success,
// within a retry middleware configured for two additional attempts, resolve
// to a normal dispatch from the engine's point of view.
func TestRetryOnTransientAdapterFailure(t *testing.T) {
	flaky := &flakyAdapter{failures: 2}
	pipeline := middleware.Compose(middleware.Retry(middleware.RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Backoff:    middleware.BackoffConstant,
		Sleep:      func(time.Duration) {},
	}))
	h := newHarnessWithAdapter(t, pipeline, flaky)

	render := func(ctx context.Context) (*plan.Node, error) {
		a := latestAgent(t, h, "/claude:flaky")
		if !isComplete(a) {
			return root(claudeNode("flaky", "do work")), nil
		}
		return root(stopNode("done:" + a.Result)), nil
	}

	result := h.run(render, engine.Options{MaxFrames: 5})
	require.Equal(t, engine.ReasonStopNode, result.Reason)
	require.Equal(t, "done:ok", result.Output)
	require.Equal(t, 2, result.Frames)
	require.Equal(t, 3, flaky.calls)
}
