package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Memory is an execution-independent scoped key/value fact an agent chose
// to retain across runs (e.g. project conventions, prior decisions).
type Memory struct {
	ID         string    `json:"id"`
	Scope      string    `json:"scope"`
	ScopeID    string    `json:"scope_id"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UpsertMemory inserts or updates a (scope, scope_id, key) memory row,
// idempotent on the unique index declared in the initial migration.
func UpsertMemory(db *sql.DB, scope, scopeID, key, value string, confidence float64) (string, error) {
	var id string
	err := TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(context.Background(), `
			SELECT id FROM memories WHERE scope = ? AND scope_id = ? AND key = ?
		`, scope, scopeID, key).Scan(&id)
		if err == sql.ErrNoRows {
			id = generatePrefixedID("mem")
			_, err = tx.ExecContext(context.Background(), `
				INSERT INTO memories (id, scope, scope_id, key, value, confidence)
				VALUES (?, ?, ?, ?, ?, ?)
			`, id, scope, scopeID, key, value, confidence)
			return err
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(context.Background(), `
			UPDATE memories SET value = ?, confidence = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
		`, value, confidence, id)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("upsert memory: %w", err)
	}
	return id, nil
}

// ListMemories returns every memory row for a scope/scope_id pair.
func ListMemories(db *sql.DB, scope, scopeID string) ([]Memory, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, scope, scope_id, key, value, confidence, created_at, updated_at
		FROM memories WHERE scope = ? AND scope_id = ? ORDER BY key ASC
	`, scope, scopeID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.ID, &m.Scope, &m.ScopeID, &m.Key, &m.Value, &m.Confidence, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
