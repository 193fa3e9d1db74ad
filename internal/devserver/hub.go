package devserver

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/letterpet/client-go/internal/wire"
)

// Hub tracks the active chat socket per username and pushes server events
// to connected clients.
type Hub struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{active: make(map[string]*websocket.Conn)}
}

// Register adds a connection for a username. A previous connection for the
// same username is closed and replaced.
func (h *Hub) Register(username string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.active[username]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	h.active[username] = conn
	slog.Info("Chat socket registered", "username", username)
}

// Unregister removes a connection for a username. Stale connections are
// ignored.
func (h *Hub) Unregister(username string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.active[username]; ok && current == conn {
		delete(h.active, username)
		slog.Info("Chat socket unregistered", "username", username)
	}
}

// Push encodes an event once and delivers it to every listed username that
// currently has a socket. Delivery failures are logged, not retried.
func (h *Hub) Push(ctx context.Context, usernames []string, ev *wire.ServerEvent) {
	frame, err := wire.EncodeServerEvent(ev)
	if err != nil {
		slog.Error("Failed to encode server event", "type", ev.Type, "error", err)
		return
	}

	h.mu.RLock()
	conns := make(map[string]*websocket.Conn, len(usernames))
	for _, name := range usernames {
		if conn, ok := h.active[name]; ok {
			conns[name] = conn
		}
	}
	h.mu.RUnlock()

	for name, conn := range conns {
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			slog.Debug("Push failed", "username", name, "type", ev.Type, "error", err)
		}
	}
}
