package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Snapshot phases: a "before" snapshot is taken before a write-classified
// tool call runs; an "after" snapshot is taken once it completes, enabling
// rollback to the before ref if the call failed.
const (
	SnapshotPhaseBefore = "before"
	SnapshotPhaseAfter  = "after"
)

// Snapshot is a git-backed checkpoint of the working tree around a
// write-classified tool call.
type Snapshot struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	AgentID     string    `json:"agent_id,omitempty"`
	ToolCallID  string    `json:"tool_call_id,omitempty"`
	Phase       string    `json:"phase"`
	Ref         string    `json:"ref"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecordSnapshot inserts a snapshot row.
func RecordSnapshot(db *sql.DB, executionID, agentID, toolCallID, phase, ref string) (string, error) {
	id := generatePrefixedID("snap")
	err := TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO snapshots (id, execution_id, agent_id, tool_call_id, phase, ref)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, executionID, nullableString(agentID), nullableString(toolCallID), phase, ref)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("record snapshot: %w", err)
	}
	return id, nil
}

// BeforeSnapshotForToolCall returns the "before" snapshot ref for a tool
// call, used to roll back a failed write.
func BeforeSnapshotForToolCall(db *sql.DB, toolCallID string) (*Snapshot, error) {
	var s Snapshot
	var agentID, tcID sql.NullString
	err := db.QueryRowContext(context.Background(), `
		SELECT id, execution_id, COALESCE(agent_id, ''), COALESCE(tool_call_id, ''), phase, ref, created_at
		FROM snapshots WHERE tool_call_id = ? AND phase = ?
		ORDER BY created_at DESC LIMIT 1
	`, toolCallID, SnapshotPhaseBefore).Scan(&s.ID, &s.ExecutionID, &agentID, &tcID, &s.Phase, &s.Ref, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("before snapshot for tool call %s: %w", toolCallID, err)
	}
	s.AgentID = agentID.String
	s.ToolCallID = tcID.String
	return &s, nil
}

// PruneSnapshots deletes all but the most recent keepCount snapshots for an
// execution, keeping storage bounded on long-running trees.
func PruneSnapshots(db *sql.DB, executionID string, keepCount int) (int64, error) {
	if keepCount < 0 {
		keepCount = 0
	}
	var affected int64
	err := TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(context.Background(), `
			DELETE FROM snapshots
			WHERE execution_id = ? AND id NOT IN (
				SELECT id FROM snapshots WHERE execution_id = ?
				ORDER BY created_at DESC LIMIT ?
			)
		`, executionID, executionID, keepCount)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return affected, nil
}
