// Package review implements the review gate: an agent-backed code review
// over a diff, commit, PR, or file set, whose verdict can block the
// execution loop.
package review

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dotcommander/smithers/internal/adapter"
	"github.com/dotcommander/smithers/internal/models"
	"github.com/dotcommander/smithers/internal/store"
)

// Target is what a review node points at.
type Target string

const (
	TargetDiff   Target = "diff"
	TargetCommit Target = "commit"
	TargetPR     Target = "pr"
	TargetFiles  Target = "files"
)

// maxContentBytes bounds how much diff/file content is sent to the
// reviewing agent; content above this is truncated, keeping a head and a
// tail slice so context at both ends survives.
const maxContentBytes = 120 * 1024

const headTailSliceBytes = maxContentBytes / 2

const schemaJSON = `{
  "type": "object",
  "required": ["approved", "summary", "issues"],
  "properties": {
    "approved": {"type": "boolean"},
    "summary": {"type": "string"},
    "issues": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["severity", "message"],
        "properties": {
          "severity": {"type": "string", "enum": ["critical", "major", "minor"]},
          "file": {"type": "string"},
          "line": {"type": "integer"},
          "message": {"type": "string"},
          "suggestion": {"type": "string"}
        }
      }
    }
  }
}`

// Issue is a single finding a review verdict reports.
type Issue struct {
	Severity   string `json:"severity"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Verdict is the fixed-schema structured output a reviewing agent returns.
type Verdict struct {
	Approved bool    `json:"approved"`
	Summary  string  `json:"summary"`
	Issues   []Issue `json:"issues"`
}

// Request describes one review-gate invocation.
type Request struct {
	ExecutionID   string
	NodeKey       string
	Target        Target
	Content       string
	Blocking      bool
	Model         string
	SchemaRetries int
}

// Gate runs review requests through an adapter and records the result.
type Gate struct {
	db      *sql.DB
	adapter adapter.Adapter
}

// New builds a review gate backed by the given adapter (typically the same
// claude/codex/gemini binding the engine uses for ordinary nodes).
func New(db *sql.DB, a adapter.Adapter) *Gate {
	return &Gate{db: db, adapter: a}
}

// Run builds a prompt from req.Content, invokes the adapter with the fixed
// review schema, persists a reviews row, and returns the parsed verdict. A
// rejected blocking review is reported via the returned error
// (models.ReviewRejection); the reviews row is written regardless.
func (g *Gate) Run(ctx context.Context, req Request) (*store.Review, *Verdict, error) {
	reviewID, err := store.CreateReview(g.db, req.ExecutionID, req.NodeKey, string(req.Target), req.Content, req.Blocking)
	if err != nil {
		return nil, nil, fmt.Errorf("create review: %w", err)
	}

	prompt := buildPrompt(req.Target, req.Content)
	result, err := g.adapter.Invoke(ctx, adapter.Options{
		NodeKey:       req.NodeKey,
		Prompt:        prompt,
		Model:         req.Model,
		SchemaJSON:    schemaJSON,
		SchemaRetries: req.SchemaRetries,
	}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("review adapter invocation: %w", err)
	}

	var verdict Verdict
	if err := json.Unmarshal(result.Structured, &verdict); err != nil {
		return nil, nil, fmt.Errorf("decode review verdict: %w", err)
	}

	feedback := verdict.Summary
	if err := store.ResolveReview(g.db, req.ExecutionID, reviewID, verdict.Approved, feedback); err != nil {
		return nil, nil, fmt.Errorf("resolve review: %w", err)
	}

	resolved := &store.Review{ID: reviewID, ExecutionID: req.ExecutionID, NodeKey: req.NodeKey,
		Target: string(req.Target), Prompt: prompt, Blocking: req.Blocking}
	approved := verdict.Approved
	resolved.Approved = &approved

	if req.Blocking && !verdict.Approved {
		return resolved, &verdict, &models.ReviewRejection{NodeKey: req.NodeKey, Reason: verdict.Summary}
	}
	return resolved, &verdict, nil
}

func buildPrompt(target Target, content string) string {
	truncated := truncateHeadTail(content, maxContentBytes)
	return fmt.Sprintf(
		"Review the following %s. Respond with JSON matching {approved, summary, issues:[{severity, file?, line?, message, suggestion?}]}.\n\n%s",
		target, truncated,
	)
}

// truncateHeadTail keeps the first and last halves of a too-large document,
// with an elision marker between them, so both ends of a diff stay visible.
func truncateHeadTail(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	head := content[:headTailSliceBytes]
	tail := content[len(content)-headTailSliceBytes:]
	return head + "\n\n... (truncated) ...\n\n" + tail
}
