// Package test exercises the frame loop end to end: a harness wires a real
// Engine against a scratch SQLite database and a scripted adapter, then
// drives it through ExecutePlan exactly as `smithers run` does, without
// going through the CLI or an agent-file document.
package test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/smithers/internal/adapter"
	"github.com/dotcommander/smithers/internal/debugbus"
	"github.com/dotcommander/smithers/internal/engine"
	"github.com/dotcommander/smithers/internal/human"
	"github.com/dotcommander/smithers/internal/middleware"
	"github.com/dotcommander/smithers/internal/objectstore"
	"github.com/dotcommander/smithers/internal/plan"
	"github.com/dotcommander/smithers/internal/review"
	"github.com/dotcommander/smithers/internal/state"
	"github.com/dotcommander/smithers/internal/store"
)

// harness bundles one execution's worth of collaborators: a fresh database,
// the reactor that backs both state and human-gate notification, and an
// Engine with a scripted mock standing in for every node type.
type harness struct {
	t       *testing.T
	db      *sql.DB
	reactor *store.Reactor
	state   *state.Manager
	humans  *human.Coordinator
	mock    *adapter.Mock
	engine  *engine.Engine
	execID  string
}

// newHarness builds a harness with the given pipeline (nil means no
// middleware stages at all, i.e. straight passthrough to the adapter).
func newHarness(t *testing.T, pipeline *middleware.Pipeline) *harness {
	t.Helper()

	db, err := store.InitDBWithPath(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reactor := store.NewReactor(db)
	stateManager := state.New(db, reactor)
	humans := human.New(db, reactor)

	mock := adapter.NewMock()
	adapters := adapter.NewRegistry()
	for _, nodeType := range []string{"claude", "claude-cli", "codex", "gemini"} {
		adapters.Register(nodeType, mock)
	}
	reviews := review.New(db, mock)
	bus := debugbus.New()

	objects, err := objectstore.Open(t.TempDir())
	require.NoError(t, err)

	eng := engine.New(db, reactor, stateManager, humans, reviews, adapters, pipeline, bus, nil, objects)

	exec, err := store.CreateExecution(db, "scenario", "scenario.yaml", "")
	require.NoError(t, err)
	require.NoError(t, store.StartExecution(db, exec.ID))

	return &harness{
		t: t, db: db, reactor: reactor, state: stateManager, humans: humans,
		mock: mock, engine: eng, execID: exec.ID,
	}
}

// newHarnessWithAdapter is like newHarness but binds a caller-supplied
// adapter to "claude" instead of the scripted Mock, for tests that need
// control over failure/success sequencing (e.g. retry behavior).
func newHarnessWithAdapter(t *testing.T, pipeline *middleware.Pipeline, claudeAdapter adapter.Adapter) *harness {
	t.Helper()
	h := newHarness(t, pipeline)

	adapters := adapter.NewRegistry()
	adapters.Register("claude", claudeAdapter)
	adapters.Register("claude-cli", claudeAdapter)
	adapters.Register("codex", h.mock)
	adapters.Register("gemini", h.mock)

	objects, err := objectstore.Open(h.t.TempDir())
	require.NoError(h.t, err)
	h.engine = engine.New(h.db, h.reactor, h.state, h.humans, review.New(h.db, claudeAdapter), adapters, pipeline, debugbus.New(), nil, objects)
	return h
}

func (h *harness) run(render engine.Render, opts engine.Options) *engine.Result {
	h.t.Helper()
	opts.ExecutionID = h.execID
	result, err := h.engine.ExecutePlan(context.Background(), render, opts)
	require.NoError(h.t, err)
	return result
}

func root(children ...*plan.Node) *plan.Node {
	return plan.NewNode(plan.TypeRoot, nil, nil, children...)
}

func claudeNode(key, prompt string) *plan.Node {
	n := plan.NewNode("claude", map[string]any{"prompt": prompt}, []string{"prompt"})
	n.SetKey(key)
	return n
}

func stopNode(reason string) *plan.Node {
	return plan.NewNode(plan.TypeStop, map[string]any{"reason": reason}, []string{"reason"})
}

func humanNode(key, question string) *plan.Node {
	n := plan.NewNode(plan.TypeHuman, map[string]any{"question": question}, []string{"question"})
	n.SetKey(key)
	return n
}

func reviewNode(key, content string, blocking bool) *plan.Node {
	n := plan.NewNode(plan.TypeReview, map[string]any{
		"target":   "diff",
		"content":  content,
		"blocking": blocking,
	}, []string{"target", "content", "blocking"})
	n.SetKey(key)
	return n
}

func latestAgent(t *testing.T, h *harness, nodeKey string) *store.Agent {
	t.Helper()
	a, err := store.LatestAgentByNodeKey(h.db, h.execID, nodeKey)
	require.NoError(t, err)
	return a
}

func isComplete(a *store.Agent) bool {
	return a != nil && a.Status == store.AgentStatusCompleted
}
