// Package state is the public façade over the execution's mutable data:
// phase, iteration, and free-form data visible to every node's render
// function. Every write is recorded as a transition so the run can be
// replayed or inspected after the fact.
package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dotcommander/smithers/internal/store"
)

const (
	KeyPhase     = "phase"
	KeyIteration = "iteration"
	KeyData      = "data"

	defaultPhase     = "initial"
	defaultIteration = "0"
	defaultData      = "null"
)

// Manager reads and writes the state table, appending a transition row for
// every change and notifying the reactor so subscribers can re-render.
type Manager struct {
	db      *sql.DB
	reactor *store.Reactor
}

// New wraps an open database and its reactor.
func New(db *sql.DB, reactor *store.Reactor) *Manager {
	return &Manager{db: db, reactor: reactor}
}

// Get returns a single value, or ("", false, nil) if unset.
func (m *Manager) Get(key string) (string, bool, error) {
	var value string
	var ok bool
	err := store.Transact(m.db, func(tx *sql.Tx) error {
		var err error
		value, ok, err = store.GetStateTx(tx, key)
		return err
	})
	return value, ok, err
}

// GetAll returns every key/value pair currently set.
func (m *Manager) GetAll() (map[string]string, error) {
	return store.GetAllState(m.db)
}

// Set writes one key, appending a transition tagged with executionID,
// trigger, and triggerAgentID. trigger and triggerAgentID may be empty.
func (m *Manager) Set(ctx context.Context, executionID, key, value, trigger, triggerAgentID string) error {
	return m.reactor.Transact(ctx, func(tx *sql.Tx) error {
		return m.setTx(ctx, tx, executionID, key, value, trigger, triggerAgentID)
	})
}

// SetMany writes several keys as a single transaction, each getting its own
// transition row so history stays per-key.
func (m *Manager) SetMany(ctx context.Context, executionID string, kv map[string]string, trigger, triggerAgentID string) error {
	return m.reactor.Transact(ctx, func(tx *sql.Tx) error {
		for key, value := range kv {
			if err := m.setTx(ctx, tx, executionID, key, value, trigger, triggerAgentID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Manager) setTx(ctx context.Context, tx *sql.Tx, executionID, key, value, trigger, triggerAgentID string) error {
	oldValue, _, err := store.GetStateTx(tx, key)
	if err != nil {
		return fmt.Errorf("read old state for %s: %w", key, err)
	}
	if err := store.SetStateTx(tx, key, value); err != nil {
		return err
	}
	store.RecordWrite(ctx, "INSERT INTO state", "key", key)
	if _, err := store.InsertTransitionTx(tx, executionID, key, oldValue, value, trigger, triggerAgentID); err != nil {
		return fmt.Errorf("record transition for %s: %w", key, err)
	}
	store.RecordWrite(ctx, "INSERT INTO transitions", "key", key)
	return nil
}

// Delete removes a key, recording a transition to the empty string.
func (m *Manager) Delete(ctx context.Context, executionID, key, trigger, triggerAgentID string) error {
	return m.reactor.Transact(ctx, func(tx *sql.Tx) error {
		oldValue, ok, err := store.GetStateTx(tx, key)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := store.DeleteStateTx(tx, key); err != nil {
			return err
		}
		store.RecordWrite(ctx, "DELETE FROM state", "key", key)
		_, err = store.InsertTransitionTx(tx, executionID, key, oldValue, "", trigger, triggerAgentID)
		store.RecordWrite(ctx, "INSERT INTO transitions", "key", key)
		return err
	})
}

// Reset clears all state and reinstalls the defaults every new execution
// starts from: phase="initial", iteration=0, data=null.
func (m *Manager) Reset(ctx context.Context, executionID string) error {
	return m.reactor.Transact(ctx, func(tx *sql.Tx) error {
		if err := store.ClearAllStateTx(tx); err != nil {
			return err
		}
		store.RecordTableClear(ctx, "state")
		defaults := map[string]string{
			KeyPhase:     defaultPhase,
			KeyIteration: defaultIteration,
			KeyData:      defaultData,
		}
		for key, value := range defaults {
			if err := store.SetStateTx(tx, key, value); err != nil {
				return err
			}
			if _, err := store.InsertTransitionTx(tx, executionID, key, "", value, "reset", ""); err != nil {
				return err
			}
			store.RecordWrite(ctx, "INSERT INTO transitions", "key", key)
		}
		return nil
	})
}

// History returns the transition log for a single key, newest first.
// limit <= 0 means unbounded.
func (m *Manager) History(key string, limit int) ([]store.Transition, error) {
	return store.TransitionHistory(m.db, key, limit)
}

// Snapshot captures the current state as a plain map, suitable for storing
// alongside a review or artifact and later handing to Restore.
func (m *Manager) Snapshot() (map[string]string, error) {
	return m.GetAll()
}

// Restore replaces the current state with snapshot, recording each
// changed key as a "restore"-triggered transition.
func (m *Manager) Restore(ctx context.Context, executionID string, snapshot map[string]string) error {
	return m.reactor.Transact(ctx, func(tx *sql.Tx) error {
		if err := store.ClearAllStateTx(tx); err != nil {
			return err
		}
		store.RecordTableClear(ctx, "state")
		for key, value := range snapshot {
			if err := store.SetStateTx(tx, key, value); err != nil {
				return err
			}
			if _, err := store.InsertTransitionTx(tx, executionID, key, "", value, "restore", ""); err != nil {
				return err
			}
			store.RecordWrite(ctx, "INSERT INTO transitions", "key", key)
		}
		return nil
	})
}

// ReplayTo rewinds state to what it was immediately after transitionID was
// applied: clear everything, then replay every transition with id <=
// transitionID in order, taking each transition's new_value as the key's
// value at that point in time.
func (m *Manager) ReplayTo(ctx context.Context, executionID string, transitionID int64) error {
	transitions, err := store.TransitionsUpTo(m.db, transitionID)
	if err != nil {
		return fmt.Errorf("load transitions for replay: %w", err)
	}

	replayed := make(map[string]string)
	for _, t := range transitions {
		if t.NewValue == "" {
			delete(replayed, t.Key)
			continue
		}
		replayed[t.Key] = t.NewValue
	}

	return m.reactor.Transact(ctx, func(tx *sql.Tx) error {
		if err := store.ClearAllStateTx(tx); err != nil {
			return err
		}
		store.RecordTableClear(ctx, "state")
		for key, value := range replayed {
			if err := store.SetStateTx(tx, key, value); err != nil {
				return err
			}
		}
		_, err := store.InsertTransitionTx(tx, executionID, "__replay__", "", fmt.Sprintf("%d", transitionID), "replay", "")
		store.RecordWrite(ctx, "INSERT INTO transitions", "key", "__replay__")
		return err
	})
}
