package middleware

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/smithers/internal/adapter"
)

func markOption(name string) Middleware {
	return Middleware{
		Name: name,
		TransformOptions: func(_ context.Context, opts adapter.Options) (adapter.Options, error) {
			opts.SystemPrompt += name + ">"
			return opts, nil
		},
	}
}

func TestComposeRunsTransformOptionsLeftToRight(t *testing.T) {
	p := Compose(markOption("a"), markOption("b"), markOption("c"))

	var seen string
	invoke := func(_ context.Context, opts adapter.Options, _ func(adapter.Chunk)) (adapter.Result, error) {
		seen = opts.SystemPrompt
		return adapter.Result{}, nil
	}
	_, err := p.Execute(context.Background(), adapter.Options{}, nil, invoke)
	require.NoError(t, err)
	require.Equal(t, "a>b>c>", seen)
}

func recordOrder(name string, order *[]string) Middleware {
	return Middleware{
		Name: name,
		WrapExecute: func(ctx context.Context, opts adapter.Options, next DoExecute) (adapter.Result, error) {
			*order = append(*order, name+":enter")
			result, err := next(ctx, opts)
			*order = append(*order, name+":exit")
			return result, err
		},
	}
}

func TestComposeWrapExecuteFirstMiddlewareIsOutermost(t *testing.T) {
	var order []string
	p := Compose(recordOrder("outer", &order), recordOrder("middle", &order), recordOrder("inner", &order))

	invoke := func(_ context.Context, _ adapter.Options, _ func(adapter.Chunk)) (adapter.Result, error) {
		order = append(order, "invoke")
		return adapter.Result{}, nil
	}
	_, err := p.Execute(context.Background(), adapter.Options{}, nil, invoke)
	require.NoError(t, err)
	require.Equal(t, []string{
		"outer:enter", "middle:enter", "inner:enter",
		"invoke",
		"inner:exit", "middle:exit", "outer:exit",
	}, order)
}

func TestComposeWrapExecuteCanShortCircuit(t *testing.T) {
	shortCircuit := Middleware{
		Name: "short",
		WrapExecute: func(_ context.Context, _ adapter.Options, _ DoExecute) (adapter.Result, error) {
			return adapter.Result{Text: "cached"}, nil
		},
	}
	invoked := false
	invoke := func(_ context.Context, _ adapter.Options, _ func(adapter.Chunk)) (adapter.Result, error) {
		invoked = true
		return adapter.Result{Text: "real"}, nil
	}

	p := Compose(shortCircuit)
	result, err := p.Execute(context.Background(), adapter.Options{}, nil, invoke)
	require.NoError(t, err)
	require.Equal(t, "cached", result.Text)
	require.False(t, invoked, "short-circuiting middleware must prevent the inner invoke")
}

func TestComposeTransformChunkAppliesInOrder(t *testing.T) {
	upper := Middleware{Name: "upper", TransformChunk: func(c adapter.Chunk) adapter.Chunk {
		c.Text = c.Text + "1"
		return c
	}}
	bang := Middleware{Name: "bang", TransformChunk: func(c adapter.Chunk) adapter.Chunk {
		c.Text = c.Text + "2"
		return c
	}}
	p := Compose(upper, bang)

	var got string
	onProgress := func(c adapter.Chunk) { got = c.Text }
	invoke := func(_ context.Context, _ adapter.Options, onChunk func(adapter.Chunk)) (adapter.Result, error) {
		onChunk(adapter.Chunk{Kind: adapter.ChunkDelta, Text: "x"})
		return adapter.Result{}, nil
	}
	_, err := p.Execute(context.Background(), adapter.Options{}, onProgress, invoke)
	require.NoError(t, err)
	require.Equal(t, "x12", got)
}

func TestComposeTransformResultRunsLeftToRightAfterOnion(t *testing.T) {
	appendSuffix := func(s string) Middleware {
		return Middleware{
			Name: s,
			TransformResult: func(_ context.Context, result adapter.Result) (adapter.Result, error) {
				result.Text += s
				return result, nil
			},
		}
	}
	p := Compose(appendSuffix("1"), appendSuffix("2"))

	invoke := func(_ context.Context, _ adapter.Options, _ func(adapter.Chunk)) (adapter.Result, error) {
		return adapter.Result{Text: "base-"}, nil
	}
	result, err := p.Execute(context.Background(), adapter.Options{}, nil, invoke)
	require.NoError(t, err)
	require.Equal(t, "base-12", result.Text)
}

func TestComposeFiltersEmptyEntries(t *testing.T) {
	p := Compose(Middleware{}, Middleware{Name: "real"}, Middleware{})
	require.Equal(t, "real", p.Name())
}

func TestComposeNameJoinsWithPlus(t *testing.T) {
	p := Compose(Middleware{Name: "a"}, Middleware{Name: "b"}, Middleware{Name: "c"})
	require.Equal(t, "a+b+c", p.Name())
}

func TestComposeCacheShortCircuitSkipsInnerStagesOnHit(t *testing.T) {
	store, err := NewCacheStore(8)
	require.NoError(t, err)

	innerCalls := 0
	invoke := func(_ context.Context, _ adapter.Options, _ func(adapter.Chunk)) (adapter.Result, error) {
		innerCalls++
		return adapter.Result{Text: "fresh"}, nil
	}

	p := Compose(Cache(store))
	opts := adapter.Options{ContentHash: "h1"}

	r1, err := p.Execute(context.Background(), opts, nil, invoke)
	require.NoError(t, err)
	require.Equal(t, "fresh", r1.Text)
	require.Equal(t, 1, innerCalls)

	r2, err := p.Execute(context.Background(), opts, nil, invoke)
	require.NoError(t, err)
	require.Equal(t, "fresh", r2.Text)
	require.Equal(t, 1, innerCalls, "second call with the same content hash must hit the cache")
}

func TestValidationFailsOnPredicateFalse(t *testing.T) {
	p := Compose(Validation(nil, func(adapter.Result) (bool, string) { return false, "nope" }))
	invoke := func(_ context.Context, _ adapter.Options, _ func(adapter.Chunk)) (adapter.Result, error) {
		return adapter.Result{Text: "ok"}, nil
	}
	_, err := p.Execute(context.Background(), adapter.Options{NodeKey: "n1"}, nil, invoke)
	require.Error(t, err)
}

func TestValidationSkipsPredicateOnStopError(t *testing.T) {
	called := false
	p := Compose(Validation(nil, func(adapter.Result) (bool, string) {
		called = true
		return false, "nope"
	}))
	invoke := func(_ context.Context, _ adapter.Options, _ func(adapter.Chunk)) (adapter.Result, error) {
		return adapter.Result{StopReason: adapter.StopError}, nil
	}
	_, err := p.Execute(context.Background(), adapter.Options{}, nil, invoke)
	require.NoError(t, err)
	require.False(t, called, "predicate must not run when the result already stopped in error")
}

func TestRedactScrubsTextAndChunks(t *testing.T) {
	patterns := []*regexp.Regexp{regexp.MustCompile(`sk-[A-Za-z0-9]{16,}`)}
	p := Compose(Redact(patterns))

	var chunkSeen string
	onProgress := func(c adapter.Chunk) { chunkSeen = c.Text }
	invoke := func(_ context.Context, _ adapter.Options, onChunk func(adapter.Chunk)) (adapter.Result, error) {
		onChunk(adapter.Chunk{Kind: adapter.ChunkDelta, Text: "key=sk-aaaaaaaaaaaaaaaaaaaa"})
		return adapter.Result{Text: "key=sk-aaaaaaaaaaaaaaaaaaaa"}, nil
	}
	result, err := p.Execute(context.Background(), adapter.Options{}, onProgress, invoke)
	require.NoError(t, err)
	require.Contains(t, result.Text, "[redacted]")
	require.NotContains(t, result.Text, "sk-aaaaaaaaaaaaaaaaaaaa")
	require.Contains(t, chunkSeen, "[redacted]")
}

func TestRetryStopsAfterMaxRetriesExhausted(t *testing.T) {
	var delays []time.Duration
	attempts := 0
	p := Compose(Retry(RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Backoff:    BackoffConstant,
		Sleep:      func(d time.Duration) { delays = append(delays, d) },
	}))

	invoke := func(_ context.Context, _ adapter.Options, _ func(adapter.Chunk)) (adapter.Result, error) {
		attempts++
		return adapter.Result{}, errors.New("boom")
	}
	_, err := p.Execute(context.Background(), adapter.Options{}, nil, invoke)
	require.Error(t, err)
	require.Equal(t, 3, attempts, "MaxRetries=2 means 3 total attempts")
	require.Len(t, delays, 2, "a sleep happens between attempts, not after the last one")
}

func TestRetrySucceedsWithoutExhaustingRetries(t *testing.T) {
	attempts := 0
	p := Compose(Retry(RetryConfig{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
		Sleep:      func(time.Duration) {},
	}))

	invoke := func(_ context.Context, _ adapter.Options, _ func(adapter.Chunk)) (adapter.Result, error) {
		attempts++
		if attempts < 3 {
			return adapter.Result{}, errors.New("transient")
		}
		return adapter.Result{Text: "ok"}, nil
	}
	result, err := p.Execute(context.Background(), adapter.Options{}, nil, invoke)
	require.NoError(t, err)
	require.Equal(t, "ok", result.Text)
	require.Equal(t, 3, attempts)
}

func TestRetryDefaultRetryOnRetriesValidationErrors(t *testing.T) {
	attempts := 0
	p := Compose(
		Retry(RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}),
		Validation(nil, func(adapter.Result) (bool, string) { return false, "always invalid" }),
	)

	invoke := func(_ context.Context, _ adapter.Options, _ func(adapter.Chunk)) (adapter.Result, error) {
		attempts++
		return adapter.Result{Text: "x"}, nil
	}
	_, err := p.Execute(context.Background(), adapter.Options{}, nil, invoke)
	require.Error(t, err)
	require.Equal(t, 2, attempts, "a ValidationError from the inner stage must trigger a retry")
}

func TestRetryDoesNotRetryWhenRetryOnReturnsFalse(t *testing.T) {
	attempts := 0
	p := Compose(Retry(RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		RetryOn:    func(error) bool { return false },
		Sleep:      func(time.Duration) {},
	}))
	invoke := func(_ context.Context, _ adapter.Options, _ func(adapter.Chunk)) (adapter.Result, error) {
		attempts++
		return adapter.Result{}, errors.New("fatal")
	}
	_, err := p.Execute(context.Background(), adapter.Options{}, nil, invoke)
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestTimeoutComputesDefaultFromModelAndPromptLength(t *testing.T) {
	mw := Timeout(TimeoutConfig{Base: time.Minute, PromptLengthFactor: time.Millisecond})
	opts, err := mw.TransformOptions(context.Background(), adapter.Options{Model: "opus", Prompt: "12345"})
	require.NoError(t, err)
	require.True(t, opts.TimeoutExplicit)
	require.Equal(t, 90*time.Second+5*time.Millisecond, opts.Timeout)
}

func TestTimeoutLeavesExplicitTimeoutAlone(t *testing.T) {
	mw := Timeout(TimeoutConfig{Base: time.Minute})
	opts, err := mw.TransformOptions(context.Background(), adapter.Options{Timeout: 7 * time.Second, TimeoutExplicit: true})
	require.NoError(t, err)
	require.Equal(t, 7*time.Second, opts.Timeout)
}

func TestCostReportsOnceWithSettledTokens(t *testing.T) {
	var reports []CostReport
	prices := map[string]ModelPrice{"sonnet": {InputPerMillion: 3, OutputPerMillion: 15}}
	p := Compose(Cost(prices, func(r CostReport) { reports = append(reports, r) }))

	invoke := func(_ context.Context, _ adapter.Options, _ func(adapter.Chunk)) (adapter.Result, error) {
		return adapter.Result{TokensIn: 1_000_000, TokensOut: 1_000_000}, nil
	}
	_, err := p.Execute(context.Background(), adapter.Options{Model: "sonnet", NodeKey: "n1"}, nil, invoke)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.InDelta(t, 18.0, reports[0].USD, 0.0001)
}

func TestCostSkipsZeroTokenResults(t *testing.T) {
	var reports []CostReport
	p := Compose(Cost(map[string]ModelPrice{}, func(r CostReport) { reports = append(reports, r) }))

	invoke := func(_ context.Context, _ adapter.Options, _ func(adapter.Chunk)) (adapter.Result, error) {
		return adapter.Result{}, nil
	}
	_, err := p.Execute(context.Background(), adapter.Options{}, nil, invoke)
	require.NoError(t, err)
	require.Empty(t, reports)
}
