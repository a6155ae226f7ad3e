// Package debugbus is the engine's ordered debug event stream: session and
// frame boundaries, per-node execution markers, and full tree snapshots for
// replay tooling. Delivery is synchronous and unbuffered — a slow subscriber
// must queue on its own side.
package debugbus

import (
	"sync"
	"time"

	"github.com/dotcommander/smithers/internal/plan"
)

// EventType discriminates the records the bus carries.
type EventType string

const (
	EventSessionStart     EventType = "session:start"
	EventSessionEnd       EventType = "session:end"
	EventFrameStart       EventType = "frame:start"
	EventFrameEnd         EventType = "frame:end"
	EventNodeExecuteStart EventType = "node:execute:start"
	EventNodeExecuteEnd   EventType = "node:execute:end"
	EventTreeUpdate       EventType = "tree:update"
	EventLog              EventType = "log"
	EventLoopTerminated   EventType = "loop:terminated"
)

// NodeSnapshot is a Node stripped of callables and reserved props, the
// form a tree:update event carries for replay/inspection tooling.
type NodeSnapshot struct {
	Type     string         `json:"type"`
	Key      string         `json:"key,omitempty"`
	Props    map[string]any `json:"props,omitempty"`
	Warnings []plan.Warning `json:"warnings,omitempty"`
	Children []NodeSnapshot `json:"children,omitempty"`
}

// Snapshot builds a NodeSnapshot from a live tree, dropping reserved props
// (callables, validators) at every level. Carries whatever Warnings the
// tree already has attached (from a prior plan.DetectWarnings call) rather
// than computing them itself — the engine runs DetectWarnings once per
// frame before emitting a tree:update, not once per snapshot consumer.
func Snapshot(n *plan.Node) NodeSnapshot {
	if n == nil {
		return NodeSnapshot{}
	}
	snap := NodeSnapshot{Type: n.Type, Warnings: n.Warnings}
	if n.HasKey {
		snap.Key = n.Key
	}
	if len(n.Props) > 0 {
		snap.Props = make(map[string]any)
		for k, v := range n.Props {
			if plan.IsReservedProp(k) {
				continue
			}
			snap.Props[k] = v
		}
	}
	for _, c := range n.Children {
		snap.Children = append(snap.Children, Snapshot(c))
	}
	return snap
}

// Event is a single record on the bus.
type Event struct {
	Type      EventType     `json:"type"`
	SessionID string        `json:"sessionId,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Frame     int           `json:"frame,omitempty"`
	NodeKey   string        `json:"nodeKey,omitempty"`
	Message   string        `json:"message,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Tree      *NodeSnapshot `json:"tree,omitempty"`
}

// Bus fans a single event stream out to every subscriber, synchronously, in
// subscription order.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]func(Event)
	next        int
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{subscribers: make(map[int]func(Event))}
}

// Subscribe registers a handler and returns an unsubscribe func.
func (b *Bus) Subscribe(handler func(Event)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subscribers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

// Emit delivers an event to every current subscriber, synchronously, in
// registration order.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	handlers := make([]func(Event), 0, len(b.subscribers))
	for i := 0; i < b.next; i++ {
		if h, ok := b.subscribers[i]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(e)
	}
}
