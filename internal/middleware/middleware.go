// Package middleware composes stages around a single agent dispatch:
// an options transform, an execution wrapper ("onion"), a chunk transform,
// and a result transform. Composition is a pure function over an ordered
// list — no ambient state beyond what a built-in explicitly carries
// (a cache, a rate-limit bucket).
package middleware

import (
	"context"
	"strings"

	"github.com/dotcommander/smithers/internal/adapter"
)

// DoExecute is the inner call a wrapExecute stage may invoke (or skip, to
// short-circuit execution and return a result of its own). The chunk sink is
// fixed for the lifetime of one Execute call and is not threaded through
// here explicitly — a middleware that needs to observe chunks does so via
// TransformChunk instead.
type DoExecute func(ctx context.Context, opts adapter.Options) (adapter.Result, error)

// Middleware is the 5-tuple. Every field is optional; a nil field behaves
// as identity for that stage.
type Middleware struct {
	Name            string
	TransformOptions func(ctx context.Context, opts adapter.Options) (adapter.Options, error)
	WrapExecute      func(ctx context.Context, opts adapter.Options, next DoExecute) (adapter.Result, error)
	TransformChunk   func(chunk adapter.Chunk) adapter.Chunk
	TransformResult  func(ctx context.Context, result adapter.Result) (adapter.Result, error)
}

func (m Middleware) isEmpty() bool {
	return m.TransformOptions == nil && m.WrapExecute == nil && m.TransformChunk == nil && m.TransformResult == nil
}

// Pipeline is a composed, ready-to-run chain. Build one with Compose.
type Pipeline struct {
	name  string
	stack []Middleware
}

// Compose builds a pipeline from middlewares in the order given. Empty
// entries (all stages nil) are filtered out, matching the "null entries are
// identity" composition rule.
func Compose(middlewares ...Middleware) *Pipeline {
	var names []string
	var stack []Middleware
	for _, mw := range middlewares {
		if mw.isEmpty() && mw.Name == "" {
			continue
		}
		stack = append(stack, mw)
		if mw.Name != "" {
			names = append(names, mw.Name)
		}
	}
	return &Pipeline{name: strings.Join(names, "+"), stack: stack}
}

// Name returns the composed middleware names joined with "+".
func (p *Pipeline) Name() string { return p.name }

// Execute runs opts through transformOptions, then the wrapExecute onion
// around invoke, then transformResult. onProgress, if non-nil, receives
// every chunk after it has passed through every middleware's transformChunk
// in order. invoke is the underlying adapter call (e.g. Adapter.Invoke).
func (p *Pipeline) Execute(
	ctx context.Context,
	opts adapter.Options,
	onProgress func(adapter.Chunk),
	invoke func(ctx context.Context, opts adapter.Options, onChunk func(adapter.Chunk)) (adapter.Result, error),
) (adapter.Result, error) {
	resolved := opts
	for _, mw := range p.stack {
		if mw.TransformOptions == nil {
			continue
		}
		var err error
		resolved, err = mw.TransformOptions(ctx, resolved)
		if err != nil {
			return adapter.Result{}, err
		}
	}

	wrappedChunk := onProgress
	if wrappedChunk != nil {
		chain := p.stack
		wrappedChunk = func(c adapter.Chunk) {
			for _, mw := range chain {
				if mw.TransformChunk != nil {
					c = mw.TransformChunk(c)
				}
			}
			onProgress(c)
		}
	}

	var exec DoExecute = func(ctx context.Context, opts adapter.Options) (adapter.Result, error) {
		return invoke(ctx, opts, wrappedChunk)
	}
	for i := len(p.stack) - 1; i >= 0; i-- {
		mw := p.stack[i]
		if mw.WrapExecute == nil {
			continue
		}
		inner := exec
		wrap := mw.WrapExecute
		exec = func(ctx context.Context, opts adapter.Options) (adapter.Result, error) {
			return wrap(ctx, opts, inner)
		}
	}

	result, err := exec(ctx, resolved)
	if err != nil {
		return result, err
	}

	for _, mw := range p.stack {
		if mw.TransformResult == nil {
			continue
		}
		result, err = mw.TransformResult(ctx, result)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}
