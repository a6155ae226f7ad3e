package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Execution is the top-level run row: one per `smithers run <file>`
// invocation. Every other entity table cascades from executions.id.
type Execution struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	FilePath    string     `json:"file_path"`
	Status      string     `json:"status"`
	Config      string     `json:"config,omitempty"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	Frames      int        `json:"frames"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Execution lifecycle statuses.
const (
	ExecutionStatusPending   = "pending"
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
	ExecutionStatusCancelled = "cancelled"
)

// CreateExecution inserts a new execution row in "pending" status.
func CreateExecution(db *sql.DB, name, filePath, config string) (*Execution, error) {
	id := generatePrefixedID("exec")
	err := TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO executions (id, name, file_path, status, config)
			VALUES (?, ?, ?, ?, ?)
		`, id, name, filePath, ExecutionStatusPending, nullableString(config))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	return GetExecution(db, id)
}

// StartExecution transitions an execution to "running" and records
// started_at.
func StartExecution(db *sql.DB, id string) error {
	return TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			UPDATE executions SET status = ?, started_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, ExecutionStatusRunning, id)
		return err
	})
}

// FinishExecution records the terminal status, result, and error (either may
// be empty) and sets completed_at.
func FinishExecution(db *sql.DB, id, status, result, errMsg string) error {
	return TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			UPDATE executions
			SET status = ?, result = ?, error = ?, completed_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, status, nullableString(result), nullableString(errMsg), id)
		return err
	})
}

// IncrementFrames bumps the execution's frame counter by one, called once
// per engine frame so `smithers status` can report progress mid-run.
func IncrementFrames(db *sql.DB, id string) error {
	return TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			UPDATE executions SET frames = frames + 1 WHERE id = ?
		`, id)
		return err
	})
}

// GetExecution loads a single execution by ID.
func GetExecution(db *sql.DB, id string) (*Execution, error) {
	var e Execution
	var config, result, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	err := db.QueryRowContext(context.Background(), `
		SELECT id, name, file_path, status, config, result, error, frames, started_at, completed_at, created_at
		FROM executions WHERE id = ?
	`, id).Scan(&e.ID, &e.Name, &e.FilePath, &e.Status, &config, &result, &errMsg, &e.Frames, &startedAt, &completedAt, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", id, err)
	}
	e.Config = config.String
	e.Result = result.String
	e.Error = errMsg.String
	if startedAt.Valid {
		e.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}
	return &e, nil
}

// ListExecutions returns the most recent executions, newest first.
func ListExecutions(db *sql.DB, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, name, file_path, status, frames, created_at
		FROM executions ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Execution
	for rows.Next() {
		var e Execution
		if err := rows.Scan(&e.ID, &e.Name, &e.FilePath, &e.Status, &e.Frames, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
