package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	HumanInteractionStatusPending   = "pending"
	HumanInteractionStatusAnswered  = "answered"
	HumanInteractionStatusRejected  = "rejected"
	HumanInteractionStatusCancelled = "cancelled"
)

// HumanInteraction is a single question the engine asked a human (via a
// human-gate node) and its eventual resolution.
type HumanInteraction struct {
	ID          string     `json:"id"`
	ExecutionID string     `json:"execution_id"`
	NodeKey     string     `json:"node_key"`
	Question    string     `json:"question"`
	Answer      string     `json:"answer,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// AskHuman inserts a pending human-interaction row.
func AskHuman(db *sql.DB, executionID, nodeKey, question string) (string, error) {
	id := generatePrefixedID("ask")
	err := TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO human_interactions (id, execution_id, node_key, question, status)
			VALUES (?, ?, ?, ?, ?)
		`, id, executionID, nodeKey, question, HumanInteractionStatusPending)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("ask human: %w", err)
	}
	return id, nil
}

// ResolveHuman records an answer or rejection and appends a transition so
// waiters on the reactive layer wake up: it runs through reactor.Transact and
// records the human_interactions write itself, which is what lets
// Coordinator's SubscribeWithRowFilter("human_interactions", "id", ...) fire
// the moment this commits instead of only on context cancellation.
func ResolveHuman(ctx context.Context, reactor *Reactor, executionID, id, status, answer string) error {
	return reactor.Transact(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			UPDATE human_interactions SET status = ?, answer = ?, resolved_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, status, nullableString(answer), id)
		if err != nil {
			return err
		}
		RecordWrite(ctx, "UPDATE human_interactions", "id", id)
		_, err = insertTransitionTx(tx, executionID, "human:"+id, HumanInteractionStatusPending, status, "human_resolved", "")
		if err != nil {
			return err
		}
		RecordWrite(ctx, "INSERT INTO transitions", "key", "human:"+id)
		return nil
	})
}

// GetHumanInteraction loads a single row by id.
func GetHumanInteraction(db *sql.DB, id string) (*HumanInteraction, error) {
	var h HumanInteraction
	var answer sql.NullString
	var resolvedAt sql.NullTime
	err := db.QueryRowContext(context.Background(), `
		SELECT id, execution_id, node_key, question, answer, status, created_at, resolved_at
		FROM human_interactions WHERE id = ?
	`, id).Scan(&h.ID, &h.ExecutionID, &h.NodeKey, &h.Question, &answer, &h.Status, &h.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get human interaction %s: %w", id, err)
	}
	h.Answer = answer.String
	if resolvedAt.Valid {
		h.ResolvedAt = &resolvedAt.Time
	}
	return &h, nil
}

// LatestHumanInteractionByNodeKey returns the most recent interaction row
// for a node key within an execution, or nil if none exists — used by the
// engine to avoid asking the same human node twice.
func LatestHumanInteractionByNodeKey(db *sql.DB, executionID, nodeKey string) (*HumanInteraction, error) {
	var h HumanInteraction
	var answer sql.NullString
	var resolvedAt sql.NullTime
	err := db.QueryRowContext(context.Background(), `
		SELECT id, execution_id, node_key, question, answer, status, created_at, resolved_at
		FROM human_interactions WHERE execution_id = ? AND node_key = ?
		ORDER BY created_at DESC LIMIT 1
	`, executionID, nodeKey).Scan(&h.ID, &h.ExecutionID, &h.NodeKey, &h.Question, &answer, &h.Status, &h.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest human interaction for node %s: %w", nodeKey, err)
	}
	h.Answer = answer.String
	if resolvedAt.Valid {
		h.ResolvedAt = &resolvedAt.Time
	}
	return &h, nil
}

// PendingHumanInteractions returns every unresolved question for an execution.
func PendingHumanInteractions(db *sql.DB, executionID string) ([]HumanInteraction, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, execution_id, node_key, question, status, created_at
		FROM human_interactions WHERE execution_id = ? AND status = ?
		ORDER BY created_at ASC
	`, executionID, HumanInteractionStatusPending)
	if err != nil {
		return nil, fmt.Errorf("pending human interactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []HumanInteraction
	for rows.Next() {
		var h HumanInteraction
		if err := rows.Scan(&h.ID, &h.ExecutionID, &h.NodeKey, &h.Question, &h.Status, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan human interaction: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
