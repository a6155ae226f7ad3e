// Package snapshot wraps write-classified tool calls with a before/after
// working-tree checkpoint, so a failed call can be rolled back instead of
// leaving partial edits on disk. Read-only tool calls never touch it.
package snapshot

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/dotcommander/smithers/internal/store"
)

// readOnlyTools is the fixed classification set; everything not listed here
// is treated as write-classified and gated by a before/after snapshot pair.
var readOnlyTools = map[string]bool{
	"Read":       true,
	"Glob":       true,
	"Grep":       true,
	"WebFetch":   true,
	"WebSearch":  true,
	"TaskOutput": true,
}

// IsWrite reports whether toolName needs a before/after snapshot pair.
func IsWrite(toolName string) bool {
	return !readOnlyTools[toolName]
}

// Manager checkpoints a working tree through a git repository at repoPath,
// initializing one in place (no working-tree side effects) if none exists.
type Manager struct {
	repoPath string
	repo     *git.Repository
}

// Open opens (or initializes) the git repository backing repoPath.
func Open(repoPath string) (*Manager, error) {
	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err == git.ErrRepositoryNotExists {
		repo, err = git.PlainInit(repoPath, false)
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot repo at %s: %w", repoPath, err)
	}
	return &Manager{repoPath: repoPath, repo: repo}, nil
}

// Before records the working tree's current state and persists a "before"
// snapshot row, returning the commit ref to roll back to on failure.
func (m *Manager) Before(db *sql.DB, executionID, agentID, toolCallID string) (string, error) {
	return m.checkpoint(db, executionID, agentID, toolCallID, store.SnapshotPhaseBefore)
}

// After records the working tree's state once a write-classified tool call
// has completed successfully.
func (m *Manager) After(db *sql.DB, executionID, agentID, toolCallID string) (string, error) {
	return m.checkpoint(db, executionID, agentID, toolCallID, store.SnapshotPhaseAfter)
}

func (m *Manager) checkpoint(db *sql.DB, executionID, agentID, toolCallID, phase string) (string, error) {
	wt, err := m.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("stage working tree: %w", err)
	}

	ref, err := wt.Commit(fmt.Sprintf("snapshot:%s:%s", phase, toolCallID), &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  "smithers",
			Email: "smithers@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("commit snapshot: %w", err)
	}

	if _, err := store.RecordSnapshot(db, executionID, agentID, toolCallID, phase, ref.String()); err != nil {
		return "", err
	}

	if phase == store.SnapshotPhaseAfter {
		if _, err := store.RecordCommit(db, executionID, agentID, ref.String(), fmt.Sprintf("snapshot:%s:%s", phase, toolCallID)); err != nil {
			return "", err
		}
	}

	return ref.String(), nil
}

// Rollback hard-resets the working tree to ref, discarding any changes the
// failed tool call made.
func (m *Manager) Rollback(ref string) error {
	wt, err := m.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	if err := wt.Reset(&git.ResetOptions{
		Commit: plumbing.NewHash(ref),
		Mode:   git.HardReset,
	}); err != nil {
		return fmt.Errorf("rollback to %s: %w", ref, err)
	}
	return nil
}

// RollbackToolCall finds the "before" snapshot for a failed tool call and
// rolls the working tree back to it. A no-op if the tool call had no
// recorded "before" snapshot (e.g. it was read-only and never checkpointed).
func (m *Manager) RollbackToolCall(db *sql.DB, toolCallID string) error {
	before, err := store.BeforeSnapshotForToolCall(db, toolCallID)
	if err != nil {
		return err
	}
	if before == nil {
		return nil
	}
	return m.Rollback(before.Ref)
}
