package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/dotcommander/smithers/internal/adapter"
)

// Logging emits start/finish/error records at the given level, using the
// same structured slog style the rest of the runtime uses.
func Logging(logger *slog.Logger, level slog.Level) Middleware {
	return Middleware{
		Name: "logging",
		WrapExecute: func(ctx context.Context, opts adapter.Options, next DoExecute) (adapter.Result, error) {
			logger.Log(ctx, level, "agent dispatch starting", "node_key", opts.NodeKey, "model", opts.Model)
			start := time.Now()

			result, err := next(ctx, opts)
			elapsed := time.Since(start)

			if err != nil {
				logger.Log(ctx, level, "agent dispatch failed", "node_key", opts.NodeKey, "elapsed", elapsed, "error", err)
				return result, err
			}
			logger.Log(ctx, level, "agent dispatch finished", "node_key", opts.NodeKey, "elapsed", elapsed, "stop_reason", result.StopReason)
			return result, nil
		},
	}
}
