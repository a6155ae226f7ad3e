package middleware

import (
	"context"
	"time"

	"github.com/dotcommander/smithers/internal/adapter"
)

// TimeoutConfig parameterises the timeout-assignment built-in.
type TimeoutConfig struct {
	Base                time.Duration
	ModelMultiplier     map[string]float64
	PromptLengthFactor  time.Duration // per character of opts.Prompt
}

var defaultModelMultipliers = map[string]float64{
	"opus":   1.5,
	"sonnet": 1.0,
	"haiku":  0.5,
}

// Timeout computes a default Timeout from the model and prompt length when
// the caller never set one. An explicitly-set Timeout (including zero or
// negative) is left untouched.
func Timeout(cfg TimeoutConfig) Middleware {
	multipliers := cfg.ModelMultiplier
	if multipliers == nil {
		multipliers = defaultModelMultipliers
	}

	return Middleware{
		Name: "timeout",
		TransformOptions: func(_ context.Context, opts adapter.Options) (adapter.Options, error) {
			if opts.TimeoutExplicit {
				return opts, nil
			}
			multiplier := 1.0
			if m, ok := multipliers[opts.Model]; ok {
				multiplier = m
			}
			base := time.Duration(float64(cfg.Base) * multiplier)
			promptFactor := cfg.PromptLengthFactor * time.Duration(len(opts.Prompt))
			opts.Timeout = base + promptFactor
			opts.TimeoutExplicit = true
			return opts, nil
		},
	}
}
