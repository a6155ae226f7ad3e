package middleware

import (
	"context"

	"github.com/dotcommander/smithers/internal/adapter"
)

// ModelPrice is a per-million-token price pair, in USD, for one model.
type ModelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// CostReport is what the cost middleware hands to its callback after every
// completed dispatch.
type CostReport struct {
	NodeKey   string
	Model     string
	TokensIn  int
	TokensOut int
	USD       float64
}

// Cost multiplies a result's token counts by a model-keyed price table and
// reports the total through onCost. Skipped silently when token counts are
// zero (CLI adapters that cannot observe provider token accounting).
func Cost(prices map[string]ModelPrice, onCost func(CostReport)) Middleware {
	return Middleware{
		Name: "cost",
		WrapExecute: func(ctx context.Context, opts adapter.Options, next DoExecute) (adapter.Result, error) {
			result, err := next(ctx, opts)
			if err != nil || onCost == nil {
				return result, err
			}
			if result.TokensIn == 0 && result.TokensOut == 0 {
				return result, nil
			}
			onCost(CostReport{
				NodeKey:   opts.NodeKey,
				Model:     opts.Model,
				TokensIn:  result.TokensIn,
				TokensOut: result.TokensOut,
				USD:       CostFor(prices, opts.Model, result.TokensIn, result.TokensOut),
			})
			return result, nil
		},
	}
}

// CostFor computes the USD cost of a result under a price table, without
// requiring a middleware round-trip. Exposed so callers (and the middleware
// above) share one calculation.
func CostFor(prices map[string]ModelPrice, model string, tokensIn, tokensOut int) float64 {
	price, ok := prices[model]
	if !ok {
		return 0
	}
	return float64(tokensIn)/1_000_000*price.InputPerMillion + float64(tokensOut)/1_000_000*price.OutputPerMillion
}
