package middleware

import (
	"context"
	"time"

	"github.com/dotcommander/smithers/internal/adapter"
)

// BackoffKind selects how delay grows between retry attempts.
type BackoffKind string

const (
	BackoffConstant    BackoffKind = "constant"
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

// RetryConfig parameterises the retry built-in.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	Backoff    BackoffKind
	// RetryOn decides whether an error is worth retrying. Nil means retry
	// every non-nil error, ValidationError included.
	RetryOn func(error) bool
	// OnRetry is called before each retry delay, 1-indexed by attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleep is overridable for tests; defaults to time.Sleep.
	Sleep func(time.Duration)
}

func defaultRetryOn(err error) bool {
	_, isValidation := err.(interface{ ErrorCode() string })
	if isValidation {
		return true
	}
	return err != nil
}

// Retry builds a retry middleware: up to MaxRetries additional attempts
// (MaxRetries+1 total) on a failing invocation, using the given backoff.
func Retry(cfg RetryConfig) Middleware {
	retryOn := cfg.RetryOn
	if retryOn == nil {
		retryOn = defaultRetryOn
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	return Middleware{
		Name: "retry",
		WrapExecute: func(ctx context.Context, opts adapter.Options, next DoExecute) (adapter.Result, error) {
			var lastResult adapter.Result
			var lastErr error

			for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
				lastResult, lastErr = next(ctx, opts)
				if lastErr == nil {
					return lastResult, nil
				}
				if !retryOn(lastErr) {
					return lastResult, lastErr
				}
				if attempt == cfg.MaxRetries {
					break
				}
				delay := backoffDelay(cfg.Backoff, cfg.BaseDelay, attempt+1)
				if cfg.OnRetry != nil {
					cfg.OnRetry(attempt+1, lastErr, delay)
				}
				if delay > 0 {
					sleep(delay)
				}
			}
			return lastResult, lastErr
		},
	}
}

func backoffDelay(kind BackoffKind, base time.Duration, attempt int) time.Duration {
	switch kind {
	case BackoffLinear:
		return base * time.Duration(attempt)
	case BackoffExponential:
		delay := base
		for i := 1; i < attempt; i++ {
			delay *= 2
		}
		return delay
	default:
		return base
	}
}
