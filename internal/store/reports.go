package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Report is an append-only narrative record an agent or the engine writes
// about the run (e.g. a summary produced at a stop node).
type Report struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	AgentID     string    `json:"agent_id,omitempty"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// AppendReport inserts a new report row.
func AppendReport(db *sql.DB, executionID, agentID, title, body string) (string, error) {
	id := generatePrefixedID("report")
	err := TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO reports (id, execution_id, agent_id, title, body)
			VALUES (?, ?, ?, ?, ?)
		`, id, executionID, nullableString(agentID), title, body)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("append report: %w", err)
	}
	return id, nil
}

// ListReports returns every report for an execution, oldest first.
func ListReports(db *sql.DB, executionID string) ([]Report, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, execution_id, COALESCE(agent_id, ''), title, body, created_at
		FROM reports WHERE execution_id = ? ORDER BY created_at ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.ExecutionID, &r.AgentID, &r.Title, &r.Body, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
