package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/dotcommander/smithers/internal/adapter"
)

// RateLimitConfig parameterises the token-bucket rate-limit built-in.
type RateLimitConfig struct {
	RequestsPerMinute float64
	Burst             int
	// BlockOnExhaustion waits for a token (bounded by ctx) instead of
	// returning an error immediately.
	BlockOnExhaustion bool
}

// RateLimit builds a token-bucket rate limiter shared across every
// invocation that goes through this middleware instance — construct one
// RateLimit per provider/bucket, not one per dispatch.
func RateLimit(cfg RateLimitConfig) Middleware {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), cfg.Burst)

	return Middleware{
		Name: "rate-limit",
		WrapExecute: func(ctx context.Context, opts adapter.Options, next DoExecute) (adapter.Result, error) {
			if cfg.BlockOnExhaustion {
				if err := limiter.Wait(ctx); err != nil {
					return adapter.Result{}, fmt.Errorf("rate limit wait: %w", err)
				}
			} else if !limiter.Allow() {
				return adapter.Result{}, fmt.Errorf("rate limit exceeded for %s", opts.NodeKey)
			}
			return next(ctx, opts)
		},
	}
}
