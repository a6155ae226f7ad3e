package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Artifact is a named output the engine or an agent chose to keep beyond
// the execution's lifetime record (a file, a generated document, a diff).
type Artifact struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	AgentID     string    `json:"agent_id,omitempty"`
	Name        string    `json:"name"`
	Path        string    `json:"path,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecordArtifact inserts an artifact row.
func RecordArtifact(db *sql.DB, executionID, agentID, name, path, contentHash string, sizeBytes int64) (string, error) {
	id := generatePrefixedID("artifact")
	err := TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO artifacts (id, execution_id, agent_id, name, path, content_hash, size_bytes)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, executionID, nullableString(agentID), name, nullableString(path), nullableString(contentHash), sizeBytes)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("record artifact: %w", err)
	}
	return id, nil
}

// ListArtifacts returns every artifact for an execution, oldest first.
func ListArtifacts(db *sql.DB, executionID string) ([]Artifact, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, execution_id, COALESCE(agent_id, ''), name, COALESCE(path, ''),
			COALESCE(content_hash, ''), size_bytes, created_at
		FROM artifacts WHERE execution_id = ? ORDER BY created_at ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.ID, &a.ExecutionID, &a.AgentID, &a.Name, &a.Path, &a.ContentHash, &a.SizeBytes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
