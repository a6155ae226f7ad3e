package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// inlineOutputThresholdBytes is the inline/object-store boundary: outputs
// at or below this size are stored inline in output_inline; larger outputs
// are written to content-addressed object storage (see internal/objectstore)
// and referenced by output_path + output_git_hash + a short output_summary.
const inlineOutputThresholdBytes = 1024

// ToolCall is a single tool invocation made by an agent process.
type ToolCall struct {
	ID              string     `json:"id"`
	AgentID         string     `json:"agent_id"`
	ExecutionID     string     `json:"execution_id"`
	ToolName        string     `json:"tool_name"`
	Input           string     `json:"input,omitempty"`
	OutputInline    string     `json:"output_inline,omitempty"`
	OutputPath      string     `json:"output_path,omitempty"`
	OutputGitHash   string     `json:"output_git_hash,omitempty"`
	OutputSummary   string     `json:"output_summary,omitempty"`
	OutputSizeBytes int        `json:"output_size_bytes"`
	Status          string     `json:"status"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

const (
	ToolCallStatusPending   = "pending"
	ToolCallStatusCompleted = "completed"
	ToolCallStatusError     = "error"
)

// RecordToolCallStarted inserts a pending tool-call row and returns its ID.
func RecordToolCallStarted(db *sql.DB, agentID, executionID, toolName, input string) (string, error) {
	id := generatePrefixedID("tool")
	err := TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO tool_calls (id, agent_id, execution_id, tool_name, input, status, started_at)
			VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		`, id, agentID, executionID, toolName, nullableString(input), ToolCallStatusPending)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("record tool call start: %w", err)
	}
	return id, nil
}

// ToolCallOutput is the resolved placement of a tool-call's output:
// Inline is set when output fits under the threshold; otherwise Path/GitHash
// /Summary describe its content-addressed location.
type ToolCallOutput struct {
	Inline        string
	Path          string
	GitHash       string
	Summary       string
	OutputSizeBytes int
}

// ResolveToolCallOutput decides inline-vs-object-store placement given a raw
// output string and, when the object store is used, its content address and
// a caller-supplied short summary. Pure decision function — persisting the
// object bytes is left to the caller (the engine writes them through
// internal/objectstore).
func ResolveToolCallOutput(raw string, objectPath, objectHash, summary string) ToolCallOutput {
	out := ToolCallOutput{OutputSizeBytes: len(raw)}
	if len(raw) <= inlineOutputThresholdBytes {
		out.Inline = raw
		return out
	}
	out.Path = objectPath
	out.GitHash = objectHash
	out.Summary = summary
	return out
}

// CompleteToolCall records the resolved output placement and marks the call
// completed.
func CompleteToolCall(db *sql.DB, id string, out ToolCallOutput) error {
	return TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			UPDATE tool_calls
			SET status = ?, output_inline = ?, output_path = ?, output_git_hash = ?,
				output_summary = ?, output_size_bytes = ?, finished_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, ToolCallStatusCompleted, nullableString(out.Inline), nullableString(out.Path),
			nullableString(out.GitHash), nullableString(out.Summary), out.OutputSizeBytes, id)
		return err
	})
}

// FailToolCall marks a tool call as errored.
func FailToolCall(db *sql.DB, id, errMsg string) error {
	return TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			UPDATE tool_calls SET status = ?, output_summary = ?, finished_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, ToolCallStatusError, errMsg, id)
		return err
	})
}

// ListToolCallsByAgent returns every tool call made by an agent, oldest first.
func ListToolCallsByAgent(db *sql.DB, agentID string) ([]ToolCall, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, tool_name, status, output_size_bytes, created_at
		FROM tool_calls WHERE agent_id = ? ORDER BY created_at ASC
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list tool calls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ToolCall
	for rows.Next() {
		var tc ToolCall
		if err := rows.Scan(&tc.ID, &tc.ToolName, &tc.Status, &tc.OutputSizeBytes, &tc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
