// Package bridge implements the optional desktop bridge: an ephemeral
// WebSocket the CLI dials on startup, forwarding debug bus events while
// connected and accepting control messages (cancel, open-file) in return.
// A failed or dropped connection is silently ignored; the engine runs the
// same either way.
package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dotcommander/smithers/internal/debugbus"
)

// dialTimeout bounds how long the CLI waits for the bridge to accept a
// connection before giving up and running without one.
const dialTimeout = 2 * time.Second

// Control is an inbound message from the bridge: {"type": "cancel"} or
// {"type": "open-file", "path": "..."}.
type Control struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
}

// Client forwards debug bus events to a connected desktop bridge and
// surfaces control messages it receives back to the caller.
type Client struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	control chan Control
}

// Dial attempts to connect to url within dialTimeout. A failure returns
// (nil, err); callers are expected to treat that as "no bridge" and
// continue without one.
func Dial(url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: conn, logger: logger, control: make(chan Control, 8)}
	go c.readLoop()
	return c, nil
}

// Controls returns the channel of control messages received from the
// bridge (cancel, open-file). Closed when the connection drops.
func (c *Client) Controls() <-chan Control {
	return c.control
}

// Forward writes a debug bus event to the bridge as JSON. Errors are
// logged, not returned: a broken bridge connection must never affect the
// engine loop it is merely observing.
func (c *Client) Forward(e debugbus.Event) {
	if c == nil || c.conn == nil {
		return
	}
	if err := c.conn.WriteJSON(e); err != nil {
		c.logger.Debug("bridge forward failed", "error", err)
	}
}

// Subscribe wires Forward into a debugbus.Bus, returning the unsubscribe
// func the caller should defer.
func (c *Client) Subscribe(bus *debugbus.Bus) func() {
	if c == nil {
		return func() {}
	}
	return bus.Subscribe(c.Forward)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer close(c.control)
	for {
		var msg Control
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.logger.Debug("bridge read ended", "error", err)
			return
		}
		select {
		case c.control <- msg:
		default:
			c.logger.Warn("bridge control channel full, dropping message", "type", msg.Type)
		}
	}
}

// DialContext is Dial with caller-controlled cancellation layered on top of
// the fixed handshake timeout, for callers that want --no-desktop to be
// cancellable mid-dial rather than just skippable beforehand.
func DialContext(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	done := make(chan struct{})
	var c *Client
	var err error
	go func() {
		c, err = Dial(url, logger)
		close(done)
	}()
	select {
	case <-done:
		return c, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
