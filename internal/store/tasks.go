package store

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	TaskRegistryStatusPending = "pending"
	TaskRegistryStatusRunning = "running"
	TaskRegistryStatusDone    = "done"
)

// RegisterTask inserts a transient registry row for an in-flight adapter
// invocation, so a crashed process can be reconciled against the OS on
// restart (see RunningTasks; no startup sweep in this tree calls it).
func RegisterTask(db *sql.DB, executionID, agentID, kind string, pid int) (string, error) {
	id := generatePrefixedID("task")
	err := TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO tasks (id, execution_id, agent_id, kind, status, pid)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, executionID, nullableString(agentID), kind, TaskRegistryStatusRunning, pid)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("register task: %w", err)
	}
	return id, nil
}

// CompleteTask marks a registry row done.
func CompleteTask(db *sql.DB, id string) error {
	return TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
		`, TaskRegistryStatusDone, id)
		return err
	})
}

// RunningTasks returns every task registry row still marked running,
// for crash-recovery reconciliation at startup.
func RunningTasks(db *sql.DB, executionID string) ([]string, error) {
	return queryStringColumn(db, `
		SELECT id FROM tasks WHERE execution_id = ? AND status = ?
	`, executionID, TaskRegistryStatusRunning)
}
