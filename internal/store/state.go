package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetStateTx reads a state value inside an existing transaction. Returns
// ("", false, nil) when the key is unset.
func GetStateTx(tx *sql.Tx, key string) (value string, ok bool, err error) {
	err = tx.QueryRowContext(context.Background(), `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %s: %w", key, err)
	}
	return value, true, nil
}

// SetStateTx upserts a state value inside an existing transaction.
func SetStateTx(tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(context.Background(), `
		INSERT INTO state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// DeleteStateTx removes a state key inside an existing transaction.
func DeleteStateTx(tx *sql.Tx, key string) error {
	_, err := tx.ExecContext(context.Background(), `DELETE FROM state WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete state %s: %w", key, err)
	}
	return nil
}

// GetAllState returns every key/value pair currently in the state table.
func GetAllState(db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(context.Background(), `SELECT key, value FROM state`)
	if err != nil {
		return nil, fmt.Errorf("get all state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan state row: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// ClearAllStateTx deletes every state row inside an existing transaction,
// used by Reset and ReplayTo before reinstalling defaults/replayed values.
func ClearAllStateTx(tx *sql.Tx) error {
	_, err := tx.ExecContext(context.Background(), `DELETE FROM state`)
	if err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}
