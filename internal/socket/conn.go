// Package socket owns the persistent websocket connection to the chat
// server. A Conn wraps one physical connection; it surfaces exactly one
// terminal lifecycle event, after which the Conn is dead and must be
// replaced by dialing again.
package socket

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
)

// EventKind classifies the terminal lifecycle notification of a Conn.
type EventKind int

const (
	// NotEstablished means the handshake never completed. Reported as a
	// Dial error rather than through the lifecycle channel, since no Conn
	// exists; the constant exists so callers can carry the distinction.
	NotEstablished EventKind = iota
	// ClosedNormally means the owner closed the connection cleanly.
	ClosedNormally
	// Disconnected means the connection dropped after being established.
	Disconnected
)

// Event is the single terminal lifecycle notification of a Conn.
type Event struct {
	Kind  EventKind
	Cause error
}

// Conn is one established chat socket connection.
type Conn struct {
	ws        *websocket.Conn
	lifecycle chan Event
	once      sync.Once
	userClose atomic.Bool
}

// Dial establishes the chat socket for the given identity. The identity
// travels as a query parameter; the server trusts it as-is. A Dial error
// means the connection was never established.
func Dial(ctx context.Context, endpoint, username string) (*Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse socket endpoint: %w", err)
	}
	q := u.Query()
	q.Set("username", username)
	u.RawQuery = q.Encode()

	//nolint:bodyclose // the response body is hijacked by the websocket upgrade
	ws, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial chat socket: %w", err)
	}
	return &Conn{
		ws:        ws,
		lifecycle: make(chan Event, 1),
	}, nil
}

// Send writes one text frame to the server.
func (c *Conn) Send(ctx context.Context, frame []byte) error {
	if err := c.ws.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Frames yields inbound text frames until the connection terminates. The
// sequence is single-use and not restartable: when it stops, the terminal
// lifecycle event has been emitted and the Conn is dead.
func (c *Conn) Frames(ctx context.Context) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			typ, data, err := c.ws.Read(ctx)
			if err != nil {
				c.terminate(err)
				return
			}
			if typ != websocket.MessageText {
				slog.Debug("Ignoring non-text frame", "type", typ)
				continue
			}
			if !yield(data) {
				return
			}
		}
	}
}

// Lifecycle delivers the single terminal notification for this Conn.
func (c *Conn) Lifecycle() <-chan Event {
	return c.lifecycle
}

// Close performs an owner-initiated clean shutdown. The lifecycle event
// becomes ClosedNormally regardless of how the underlying transport
// reports the teardown.
func (c *Conn) Close() error {
	c.userClose.Store(true)
	err := c.ws.Close(websocket.StatusNormalClosure, "session closed")
	c.terminate(nil)
	if err != nil {
		return fmt.Errorf("close chat socket: %w", err)
	}
	return nil
}

func (c *Conn) terminate(cause error) {
	c.once.Do(func() {
		if c.userClose.Load() || websocket.CloseStatus(cause) == websocket.StatusNormalClosure {
			c.lifecycle <- Event{Kind: ClosedNormally}
			return
		}
		c.lifecycle <- Event{Kind: Disconnected, Cause: cause}
	})
}
