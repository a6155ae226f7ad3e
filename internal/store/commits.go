package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Commit records a git commit made on the agent's behalf (e.g. by a
// snapshot wrapper after a successful tool-call write), tying it back to
// the execution and originating agent.
type Commit struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	AgentID     string    `json:"agent_id,omitempty"`
	SHA         string    `json:"sha"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecordCommit inserts a commit row.
func RecordCommit(db *sql.DB, executionID, agentID, sha, message string) (string, error) {
	id := generatePrefixedID("commit")
	err := TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO commits (id, execution_id, agent_id, sha, message)
			VALUES (?, ?, ?, ?, ?)
		`, id, executionID, nullableString(agentID), sha, nullableString(message))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("record commit: %w", err)
	}
	return id, nil
}

// ListCommits returns every commit for an execution, oldest first.
func ListCommits(db *sql.DB, executionID string) ([]Commit, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, execution_id, COALESCE(agent_id, ''), sha, COALESCE(message, ''), created_at
		FROM commits WHERE execution_id = ? ORDER BY created_at ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Commit
	for rows.Next() {
		var c Commit
		if err := rows.Scan(&c.ID, &c.ExecutionID, &c.AgentID, &c.SHA, &c.Message, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
