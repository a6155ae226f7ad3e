package middleware

import (
	"context"
	"regexp"

	"github.com/dotcommander/smithers/internal/adapter"
)

// Redact applies patterns to every streamed chunk and to the final output,
// so unredacted text never escapes the middleware chain.
func Redact(patterns []*regexp.Regexp) Middleware {
	scrub := func(s string) string {
		for _, p := range patterns {
			s = p.ReplaceAllString(s, "[redacted]")
		}
		return s
	}

	return Middleware{
		Name: "redact",
		TransformChunk: func(c adapter.Chunk) adapter.Chunk {
			c.Text = scrub(c.Text)
			return c
		},
		TransformResult: func(_ context.Context, result adapter.Result) (adapter.Result, error) {
			result.Text = scrub(result.Text)
			return result, nil
		},
	}
}
