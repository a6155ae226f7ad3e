package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Review is a single review-gate request and its resolution. Blocking
// reviews pause the engine's frame loop until resolved; approved=false
// terminates the run with a ReviewRejection.
type Review struct {
	ID          string     `json:"id"`
	ExecutionID string     `json:"execution_id"`
	NodeKey     string     `json:"node_key"`
	Target      string     `json:"target"` // diff | commit | pr | files
	Prompt      string     `json:"prompt"`
	Approved    *bool      `json:"approved,omitempty"`
	Feedback    string     `json:"feedback,omitempty"`
	Blocking    bool       `json:"blocking"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// CreateReview inserts a pending review row.
func CreateReview(db *sql.DB, executionID, nodeKey, target, prompt string, blocking bool) (string, error) {
	id := generatePrefixedID("review")
	err := TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO reviews (id, execution_id, node_key, target, prompt, blocking)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, executionID, nodeKey, target, prompt, blocking)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create review: %w", err)
	}
	return id, nil
}

// ResolveReview records the reviewer's verdict and feedback, appending a
// transitions row for the verdict. It runs in a plain transaction rather
// than Reactor.Transact, so no reactor subscriber is notified.
func ResolveReview(db *sql.DB, executionID, reviewID string, approved bool, feedback string) error {
	return TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			UPDATE reviews SET approved = ?, feedback = ?, resolved_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, approved, nullableString(feedback), reviewID)
		if err != nil {
			return err
		}
		_, err = insertTransitionTx(tx, executionID, "review:"+reviewID, "pending", approvedLabel(approved), "review_resolved", "")
		return err
	})
}

func approvedLabel(approved bool) string {
	if approved {
		return "approved"
	}
	return "rejected"
}

// LatestReviewByNodeKey returns the most recent review row for a node key
// within an execution, or nil if none exists — used by the engine to avoid
// re-running an already-resolved review gate.
func LatestReviewByNodeKey(db *sql.DB, executionID, nodeKey string) (*Review, error) {
	var r Review
	var feedback sql.NullString
	var approved sql.NullBool
	var resolvedAt sql.NullTime
	err := db.QueryRowContext(context.Background(), `
		SELECT id, execution_id, node_key, target, prompt, approved, feedback, blocking, created_at, resolved_at
		FROM reviews WHERE execution_id = ? AND node_key = ?
		ORDER BY created_at DESC LIMIT 1
	`, executionID, nodeKey).Scan(&r.ID, &r.ExecutionID, &r.NodeKey, &r.Target, &r.Prompt, &approved, &feedback, &r.Blocking, &r.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest review for node %s: %w", nodeKey, err)
	}
	r.Feedback = feedback.String
	if approved.Valid {
		r.Approved = &approved.Bool
	}
	if resolvedAt.Valid {
		r.ResolvedAt = &resolvedAt.Time
	}
	return &r, nil
}

// PendingReview returns the oldest unresolved review for an execution, or
// nil if none are pending — used by the engine to find what the frame loop
// is blocked on.
func PendingReview(db *sql.DB, executionID string) (*Review, error) {
	var r Review
	var feedback sql.NullString
	var resolvedAt sql.NullTime
	err := db.QueryRowContext(context.Background(), `
		SELECT id, execution_id, node_key, target, prompt, feedback, blocking, created_at, resolved_at
		FROM reviews WHERE execution_id = ? AND approved IS NULL
		ORDER BY created_at ASC LIMIT 1
	`, executionID).Scan(&r.ID, &r.ExecutionID, &r.NodeKey, &r.Target, &r.Prompt, &feedback, &r.Blocking, &r.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pending review: %w", err)
	}
	r.Feedback = feedback.String
	if resolvedAt.Valid {
		r.ResolvedAt = &resolvedAt.Time
	}
	return &r, nil
}
