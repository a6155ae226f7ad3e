package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Phase groups a set of agents dispatched within one named segment of a
// tree (typically one "frame" of the render loop, though a tree may label
// several frames under the same phase name for iteration).
type Phase struct {
	ID          string     `json:"id"`
	ExecutionID string     `json:"execution_id"`
	Name        string     `json:"name"`
	Iteration   int        `json:"iteration"`
	Status      string     `json:"status"`
	AgentsCount int        `json:"agents_count"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

const (
	PhaseStatusPending   = "pending"
	PhaseStatusRunning   = "running"
	PhaseStatusCompleted = "completed"
)

// CreatePhase inserts a new phase row and returns its ID.
func CreatePhase(db *sql.DB, executionID, name string, iteration int) (string, error) {
	id := generatePrefixedID("phase")
	err := TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO phases (id, execution_id, name, iteration, status, started_at)
			VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		`, id, executionID, name, iteration, PhaseStatusRunning)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create phase: %w", err)
	}
	return id, nil
}

// CompletePhase marks a phase completed and records its final agent count.
func CompletePhase(db *sql.DB, id string, agentsCount int) error {
	return TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			UPDATE phases SET status = ?, agents_count = ?, completed_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, PhaseStatusCompleted, agentsCount, id)
		return err
	})
}

// ListPhases returns every phase belonging to an execution, oldest first.
func ListPhases(db *sql.DB, executionID string) ([]Phase, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, execution_id, name, iteration, status, agents_count, created_at
		FROM phases WHERE execution_id = ? ORDER BY created_at ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list phases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Phase
	for rows.Next() {
		var p Phase
		if err := rows.Scan(&p.ID, &p.ExecutionID, &p.Name, &p.Iteration, &p.Status, &p.AgentsCount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan phase: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
