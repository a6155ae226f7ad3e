package commands

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"regexp"
	"time"

	"github.com/dotcommander/smithers/internal/adapter"
	"github.com/dotcommander/smithers/internal/app"
	"github.com/dotcommander/smithers/internal/debugbus"
	"github.com/dotcommander/smithers/internal/engine"
	"github.com/dotcommander/smithers/internal/human"
	"github.com/dotcommander/smithers/internal/middleware"
	"github.com/dotcommander/smithers/internal/objectstore"
	"github.com/dotcommander/smithers/internal/review"
	"github.com/dotcommander/smithers/internal/state"
	"github.com/dotcommander/smithers/internal/store"
)

// defaultRetries, defaultBaseTimeout and defaultRateLimit are the engine's
// built-in middleware defaults for a real (non-mocked) run; none of these
// are currently exposed as flags.
const (
	defaultRetries           = 2
	defaultBaseTimeout       = 3 * time.Minute
	defaultRequestsPerMinute = 30
	defaultBurst             = 5
	defaultResultCacheSize   = 256
)

// defaultRedactPatterns catches the secret shapes most likely to show up
// verbatim in an agent's own stdout/response text (it echoing back an env
// var, a pasted credential in a prompt) — not a substitute for keeping
// secrets out of prompts in the first place, just a last-line scrub before
// output is persisted or displayed.
var defaultRedactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{16,}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.=]{16,}`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`),
}

// defaultResultNotEmpty is the Validation built-in's default predicate:
// a node that didn't already fail outright but came back with neither
// text nor a structured payload produced nothing usable, which is worth
// surfacing as a validation failure (and retrying) rather than silently
// treating as success.
func defaultResultNotEmpty(result adapter.Result) (bool, string) {
	if result.Text == "" && len(result.Structured) == 0 {
		return false, "adapter returned neither text nor structured output"
	}
	return true, ""
}

// wired bundles an Engine together with the collaborators a CLI command
// needs direct access to beyond what Engine itself exposes (the state
// manager for rendering an agent file's template data each frame, and the
// debug bus for a desktop bridge connection to subscribe to).
type wired struct {
	Engine *engine.Engine
	State  *state.Manager
	Bus    *debugbus.Bus
}

// buildEngine wires an Engine from an open database connection using the
// real CLI adapter registry and the standard middleware stack: logging
// (outermost, so it sees cache hits too) → cache → cost reporting → timeout
// → rate-limit → retry → validation → redact (innermost, applied to every
// final result and chunk regardless of how it was produced). When mock is
// true every node type resolves to adapter.Mock instead of shelling out to
// a real CLI, for --mock runs.
func buildEngine(db *sql.DB, logger *slog.Logger, mock bool) wired {
	reactor := store.NewReactor(db)
	stateManager := state.New(db, reactor)
	humans := human.New(db, reactor)
	adapters := adapter.NewRegistry()
	if mock {
		m := adapter.NewMock()
		// A review node's schema requires approved/summary/issues back from
		// whatever adapter it's bound to; give the mock a default verdict so
		// --mock runs complete even through a review gate.
		m.Default = adapter.Result{
			Text:       "mock response",
			Structured: json.RawMessage(`{"approved":true,"summary":"mock approval","issues":[]}`),
		}
		for _, nodeType := range []string{"claude", "claude-cli", "codex", "gemini"} {
			adapters.Register(nodeType, m)
		}
	}
	reviews := review.New(db, mustResolve(adapters, "claude"))
	bus := debugbus.New()

	cacheStore, err := middleware.NewCacheStore(defaultResultCacheSize)
	if err != nil {
		// Only fails on a non-positive size, which defaultResultCacheSize never is.
		panic(err)
	}

	pipeline := middleware.Compose(
		middleware.Logging(logger, slog.LevelDebug),
		middleware.Cache(cacheStore),
		middleware.Cost(map[string]middleware.ModelPrice{}, func(report middleware.CostReport) {
			logger.Debug("agent dispatch cost", "node_key", report.NodeKey, "model", report.Model,
				"tokens_in", report.TokensIn, "tokens_out", report.TokensOut, "usd", report.USD)
		}),
		middleware.Timeout(middleware.TimeoutConfig{Base: defaultBaseTimeout}),
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerMinute: defaultRequestsPerMinute,
			Burst:             defaultBurst,
			BlockOnExhaustion: true,
		}),
		middleware.Retry(middleware.RetryConfig{
			MaxRetries: defaultRetries,
			BaseDelay:  time.Second,
			Backoff:    middleware.BackoffExponential,
			OnRetry: func(attempt int, err error, delay time.Duration) {
				logger.Warn("retrying agent dispatch", "attempt", attempt, "error", err, "delay", delay)
			},
		}),
		middleware.Validation(nil, defaultResultNotEmpty),
		middleware.Redact(defaultRedactPatterns),
	)

	var objects *objectstore.Store
	if dbPath, err := app.GetDBPath(); err == nil {
		if objStore, err := objectstore.Open(filepath.Dir(dbPath)); err == nil {
			objects = objStore
		} else {
			logger.Warn("objectstore open failed, large outputs will not be persisted", "error", err)
		}
	}

	eng := engine.New(db, reactor, stateManager, humans, reviews, adapters, pipeline, bus, logger, objects)
	return wired{Engine: eng, State: stateManager, Bus: bus}
}

func mustResolve(adapters *adapter.Registry, nodeType string) adapter.Adapter {
	a, err := adapters.Resolve(nodeType)
	if err != nil {
		// claude is always registered by adapter.NewRegistry; this would
		// only fire if that invariant is broken.
		panic(err)
	}
	return a
}
