package middleware

import (
	"context"

	"github.com/dotcommander/smithers/internal/adapter"
	"github.com/dotcommander/smithers/internal/models"
)

// Validation runs predicate on the final result and fails the dispatch with
// a ValidationError when it returns false. Skipped when the result's
// StopReason is already "error" — there is nothing useful to validate.
func Validation(nodeKeyOf func(adapter.Options) string, predicate func(adapter.Result) (bool, string)) Middleware {
	return Middleware{
		Name: "validation",
		WrapExecute: func(ctx context.Context, opts adapter.Options, next DoExecute) (adapter.Result, error) {
			result, err := next(ctx, opts)
			if err != nil {
				return result, err
			}
			if result.StopReason == adapter.StopError {
				return result, nil
			}
			ok, reason := predicate(result)
			if ok {
				return result, nil
			}
			key := opts.NodeKey
			if nodeKeyOf != nil {
				key = nodeKeyOf(opts)
			}
			return result, &models.ValidationError{NodeKey: key, Reason: reason}
		},
	}
}
