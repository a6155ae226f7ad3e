package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Transition is a single row of the append-only audit log. Every state write
// and every human-interaction or review resolution lands here; agent,
// phase, and execution status changes are not logged as transitions.
type Transition struct {
	ID             int64      `json:"id"`
	ExecutionID    string     `json:"execution_id,omitempty"`
	Key            string     `json:"key"`
	OldValue       string     `json:"old_value,omitempty"`
	NewValue       string     `json:"new_value"`
	Trigger        string     `json:"trigger,omitempty"`
	TriggerAgentID string     `json:"trigger_agent_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

const (
	maxTransitionKeyLength   = 256
	maxTransitionValueLength = 1 << 20 // 1 MiB, large values belong in the object store
)

// ValidateTransitionPayload enforces size limits so the audit log cannot be
// used to smuggle unbounded blobs past the object-store threshold.
func ValidateTransitionPayload(key, newValue string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("transition key is required")
	}
	if len(key) > maxTransitionKeyLength {
		return fmt.Errorf("transition key exceeds max length (%d)", maxTransitionKeyLength)
	}
	if len(newValue) > maxTransitionValueLength {
		return fmt.Errorf("transition value exceeds max length (%d)", maxTransitionValueLength)
	}
	return nil
}

// insertTransitionTx appends a transition row inside an existing transaction.
// executionID and triggerAgentID may be empty (stored as NULL); state rows
// that are execution-independent use an empty executionID.
func insertTransitionTx(tx *sql.Tx, executionID, key, oldValue, newValue, trigger, triggerAgentID string) (int64, error) {
	if err := ValidateTransitionPayload(key, newValue); err != nil {
		return 0, err
	}

	execVal := nullableString(executionID)
	oldVal := nullableString(oldValue)
	triggerVal := nullableString(trigger)
	triggerAgentVal := nullableString(triggerAgentID)

	result, err := tx.ExecContext(context.Background(), `
		INSERT INTO transitions (execution_id, key, old_value, new_value, trigger, trigger_agent_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, execVal, key, oldVal, newValue, triggerVal, triggerAgentVal)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transition: %w", err)
	}
	return result.LastInsertId()
}

// InsertTransitionTx is the exported form of insertTransitionTx for callers
// outside this package that already hold a transaction (e.g. internal/state).
func InsertTransitionTx(tx *sql.Tx, executionID, key, oldValue, newValue, trigger, triggerAgentID string) (int64, error) {
	return insertTransitionTx(tx, executionID, key, oldValue, newValue, trigger, triggerAgentID)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// TransitionHistory returns transitions ordered by time descending, optionally
// filtered to a single key. limit <= 0 means unbounded.
func TransitionHistory(db *sql.DB, key string, limit int) ([]Transition, error) {
	query := `SELECT id, COALESCE(execution_id, ''), key, COALESCE(old_value, ''), new_value,
		COALESCE(trigger, ''), COALESCE(trigger_agent_id, ''), created_at
		FROM transitions`
	args := []any{}
	if key != "" {
		query += ` WHERE key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows *sql.Rows
	err := RetryWithBackoff(context.Background(), func() error {
		var queryErr error
		rows, queryErr = db.QueryContext(context.Background(), query, args...)
		return queryErr
	})
	if err != nil {
		return nil, fmt.Errorf("transition history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.ID, &t.ExecutionID, &t.Key, &t.OldValue, &t.NewValue,
			&t.Trigger, &t.TriggerAgentID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TransitionsUpTo returns every transition with id <= target, ordered
// ascending, for internal/state's replayTo time-travel.
func TransitionsUpTo(db *sql.DB, targetID int64) ([]Transition, error) {
	var rows *sql.Rows
	err := RetryWithBackoff(context.Background(), func() error {
		var queryErr error
		rows, queryErr = db.QueryContext(context.Background(), `
			SELECT id, COALESCE(execution_id, ''), key, COALESCE(old_value, ''), new_value,
				COALESCE(trigger, ''), COALESCE(trigger_agent_id, ''), created_at
			FROM transitions WHERE id <= ? ORDER BY id ASC
		`, targetID)
		return queryErr
	})
	if err != nil {
		return nil, fmt.Errorf("transitions up to %d: %w", targetID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.ID, &t.ExecutionID, &t.Key, &t.OldValue, &t.NewValue,
			&t.Trigger, &t.TriggerAgentID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
