package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RenderFrame is one render→serialise cycle of the engine's frame loop,
// kept for debugging and later inspection.
type RenderFrame struct {
	ID          int64     `json:"id"`
	ExecutionID string    `json:"execution_id"`
	Frame       int       `json:"frame"`
	ContentHash string    `json:"content_hash"`
	XML         string    `json:"xml"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecordRenderFrame inserts a new render-frame row.
func RecordRenderFrame(db *sql.DB, executionID string, frame int, contentHash, xml string) (int64, error) {
	var id int64
	err := TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(context.Background(), `
			INSERT INTO render_frames (execution_id, frame, content_hash, xml)
			VALUES (?, ?, ?, ?)
		`, executionID, frame, contentHash, xml)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("record render frame: %w", err)
	}
	return id, nil
}

// LatestRenderFrame returns the most recently recorded frame for an
// execution, or nil if none exist.
func LatestRenderFrame(db *sql.DB, executionID string) (*RenderFrame, error) {
	var f RenderFrame
	err := db.QueryRowContext(context.Background(), `
		SELECT id, execution_id, frame, content_hash, xml, created_at
		FROM render_frames WHERE execution_id = ? ORDER BY frame DESC LIMIT 1
	`, executionID).Scan(&f.ID, &f.ExecutionID, &f.Frame, &f.ContentHash, &f.XML, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest render frame: %w", err)
	}
	return &f, nil
}
