// Package human implements the engine's human-interaction gate: a human
// node suspends the frame loop until a pending question is answered
// out-of-band (by a TUI, a desktop bridge client, or a CLI prompt acting on
// the store directly).
package human

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	"github.com/dotcommander/smithers/internal/store"
)

// Response is what Ask resolves to once a human-interaction row leaves the
// pending state.
type Response struct {
	Approved bool
	Raw      string
	// Decoded holds the JSON-decoded answer when it parses as JSON;
	// otherwise Raw carries the answer as-is.
	Decoded any
}

// Coordinator wraps the human_interactions table with reactive resume.
type Coordinator struct {
	db      *sql.DB
	reactor *store.Reactor

	mu      sync.Mutex
	pending map[string]string // id -> executionID, for CancelAll
}

// New wraps an open database and its reactor.
func New(db *sql.DB, reactor *store.Reactor) *Coordinator {
	return &Coordinator{db: db, reactor: reactor, pending: make(map[string]string)}
}

// AskForNode is what the engine calls once per frame for a human node: if a
// prior interaction already exists for this node key, its outcome is
// returned (or awaited, if still pending) instead of asking again.
func (c *Coordinator) AskForNode(ctx context.Context, executionID, nodeKey, question string) (Response, error) {
	existing, err := store.LatestHumanInteractionByNodeKey(c.db, executionID, nodeKey)
	if err != nil {
		return Response{}, err
	}
	if existing != nil {
		if existing.Status != store.HumanInteractionStatusPending {
			return decodeResponse(existing), nil
		}
		return c.await(ctx, executionID, existing.ID)
	}
	return c.Ask(ctx, executionID, nodeKey, question)
}

// Ask inserts a pending question and blocks until it is resolved, the
// context is cancelled, or CancelAll is called.
func (c *Coordinator) Ask(ctx context.Context, executionID, nodeKey, question string) (Response, error) {
	id, err := store.AskHuman(c.db, executionID, nodeKey, question)
	if err != nil {
		return Response{}, err
	}
	return c.await(ctx, executionID, id)
}

func (c *Coordinator) await(ctx context.Context, executionID, id string) (Response, error) {
	c.mu.Lock()
	c.pending[id] = executionID
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	resultCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	check := func() bool {
		row, err := store.GetHumanInteraction(c.db, id)
		if err != nil {
			select {
			case errCh <- err:
			default:
			}
			return true
		}
		if row == nil || row.Status == store.HumanInteractionStatusPending {
			return false
		}
		select {
		case resultCh <- decodeResponse(row):
		default:
		}
		return true
	}

	unsubscribe := c.reactor.SubscribeWithRowFilter("human_interactions", "id", []string{id}, func() {
		check()
	})
	defer unsubscribe()

	// A resolution may have landed between the insert's commit and the
	// subscription above; check once synchronously before waiting.
	if check() {
		select {
		case resp := <-resultCh:
			return resp, nil
		case err := <-errCh:
			return Response{}, err
		default:
		}
	}

	select {
	case resp := <-resultCh:
		return resp, nil
	case err := <-errCh:
		return Response{}, err
	case <-ctx.Done():
		_ = store.ResolveHuman(context.WithoutCancel(ctx), c.reactor, executionID, id, store.HumanInteractionStatusCancelled, "")
		return Response{}, ctx.Err()
	}
}

func decodeResponse(row *store.HumanInteraction) Response {
	resp := Response{
		Approved: row.Status == store.HumanInteractionStatusAnswered,
		Raw:      row.Answer,
	}
	var decoded any
	if json.Unmarshal([]byte(row.Answer), &decoded) == nil {
		resp.Decoded = decoded
		if b, ok := decoded.(bool); ok {
			resp.Approved = b
		}
	}
	return resp
}

// CancelAll completes every outstanding ask this coordinator issued with
// status=cancelled, used when the engine's external cancellation signal
// fires.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	ids := make(map[string]string, len(c.pending))
	for id, execID := range c.pending {
		ids[id] = execID
	}
	c.mu.Unlock()

	for id, execID := range ids {
		_ = store.ResolveHuman(context.Background(), c.reactor, execID, id, store.HumanInteractionStatusCancelled, "")
	}
}
