// Package session coordinates the chat session: it owns the socket
// connection, drives the connect/reconnect state machine, pumps inbound
// server events into the local store, and fronts the directory calls that
// mutate chats and membership.
package session

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/letterpet/client-go/internal/directory"
	"github.com/letterpet/client-go/internal/socket"
	"github.com/letterpet/client-go/internal/store"
	"github.com/letterpet/client-go/internal/wire"
)

// DefaultReconnectDelay is the fixed wait between reconnect attempts.
const DefaultReconnectDelay = 2 * time.Second

// State is the session connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// CloseReason records why the session left Connected, so the reconnect
// policy never has to infer intent from the shape of a close event.
type CloseReason int

const (
	CloseUnknown CloseReason = iota
	CloseUserInitiated
	CloseError
)

// Conn is the subset of the socket connection the manager drives. It is
// satisfied by *socket.Conn and by test fakes.
type Conn interface {
	Send(ctx context.Context, frame []byte) error
	Frames(ctx context.Context) iter.Seq[[]byte]
	Lifecycle() <-chan socket.Event
	Close() error
}

// Dialer establishes one connection attempt.
type Dialer func(ctx context.Context, endpoint, username string) (Conn, error)

// Config holds session tunables.
type Config struct {
	// SocketURL is the ws:// endpoint of the chat socket.
	SocketURL string
	// ReconnectDelay is the fixed wait before re-dialing after an
	// involuntary disconnect. Zero means DefaultReconnectDelay.
	ReconnectDelay time.Duration
}

// Manager is the chat session state machine. All state transitions are
// serialized behind one mutex; at most one connection is live at a time.
type Manager struct {
	cfg    Config
	dir    directory.Service
	store  *store.Store
	dial   Dialer
	logger *slog.Logger

	notices chan string

	mu       sync.Mutex
	state    State
	running  bool
	username string
	draft    string
	conn     Conn
	reason   CloseReason
}

// New creates a session manager that dials real websocket connections.
func New(cfg Config, dir directory.Service, st *store.Store, logger *slog.Logger) *Manager {
	dial := func(ctx context.Context, endpoint, username string) (Conn, error) {
		return socket.Dial(ctx, endpoint, username)
	}
	return NewWithDialer(cfg, dir, st, logger, dial)
}

// NewWithDialer creates a session manager with a custom dialer.
func NewWithDialer(cfg Config, dir directory.Service, st *store.Store, logger *slog.Logger, dial Dialer) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		dir:     dir,
		store:   st,
		dial:    dial,
		logger:  logger,
		notices: make(chan string, 8),
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Notices delivers transient user-visible notifications, such as decode
// failures and reconnect announcements. Delivery is best-effort; when the
// channel is full the notice is logged and dropped.
func (m *Manager) Notices() <-chan string {
	return m.notices
}

// Start begins a session for the given identity. It is a no-op when a
// session is already connecting or connected. The session lives until
// Disconnect is called or ctx is cancelled; involuntary disconnects
// trigger reconnect attempts indefinitely.
func (m *Manager) Start(ctx context.Context, username string) {
	m.mu.Lock()
	// The running flag, not the state, guards re-entry: between reconnect
	// attempts the state is briefly Disconnected while the session loop is
	// still alive.
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.state = StateConnecting
	m.username = username
	m.reason = CloseUnknown
	m.mu.Unlock()

	go func() {
		m.run(ctx, username)
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()
}

// Disconnect performs a user-initiated clean close. It only acts while
// connected and never triggers the reconnect policy.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.reason = CloseUserInitiated
	conn := m.conn
	m.mu.Unlock()

	m.logger.Info("Disconnecting chat session")
	if err := conn.Close(); err != nil {
		m.logger.Debug("Close after disconnect", "error", err)
	}
}

// UpdateDraft replaces the pending message draft.
func (m *Manager) UpdateDraft(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draft = text
}

// Draft returns the pending message draft.
func (m *Manager) Draft() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draft
}

// Send posts the current draft to a chat and clears the draft. A blank or
// whitespace-only draft is a no-op and the draft is left unchanged.
// Outbound messages are fire-and-forget: send failures are logged, never
// surfaced, and the message is not retried.
func (m *Manager) Send(ctx context.Context, chatID string) {
	m.mu.Lock()
	text := m.draft
	if strings.TrimSpace(text) == "" {
		m.mu.Unlock()
		return
	}
	m.draft = ""
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		m.logger.Warn("Message dropped, not connected", "chat_id", chatID)
		return
	}
	frame, err := wire.EncodeMessageRequest(text, chatID)
	if err != nil {
		m.logger.Error("Message encode failed", "chat_id", chatID, "error", err)
		return
	}
	if err := conn.Send(ctx, frame); err != nil {
		m.logger.Warn("Message send failed, dropped", "chat_id", chatID, "error", err)
	}
}

// CreateChat creates a chat owned by the session identity and appends it
// to the local chat list on success.
func (m *Manager) CreateChat(ctx context.Context, name string, isGroup bool) {
	m.mu.Lock()
	username := m.username
	m.mu.Unlock()

	chat, err := m.dir.CreateChat(ctx, wire.ChatRequest{
		CreatedBy: username,
		Name:      name,
		IsGroup:   isGroup,
	})
	if err != nil {
		m.notify(err.Error())
		return
	}
	m.store.AppendChat(chat)
}

// DeleteChat removes a chat for all members and drops it locally on
// success.
func (m *Manager) DeleteChat(ctx context.Context, chatID string) {
	if err := m.dir.DeleteChat(ctx, chatID); err != nil {
		m.notify(err.Error())
		return
	}
	m.store.RemoveChat(chatID)
}

// LoadMembers fetches a chat's member list on first access. The cache is
// never refreshed unless a membership mutation goes through this client.
func (m *Manager) LoadMembers(ctx context.Context, chatID string) {
	if m.store.Snapshot().HasMembers(chatID) {
		return
	}
	members := m.dir.GetChatMembers(ctx, chatID)
	m.store.SetMembers(chatID, members)
}

// AddMember adds an identity to a chat and updates the cached member list
// on success.
func (m *Manager) AddMember(ctx context.Context, username, chatID string) {
	if err := m.dir.AddMemberToChat(ctx, username, chatID); err != nil {
		m.notify(err.Error())
		return
	}
	m.store.AddMember(chatID, username)
}

// RemoveMember removes an identity from a chat. Removing the session's own
// identity also drops the chat from the local chat list, even though the
// directory response only confirms the membership removal.
func (m *Manager) RemoveMember(ctx context.Context, username, chatID string) {
	if err := m.dir.RemoveMemberFromChat(ctx, username, chatID); err != nil {
		m.notify(err.Error())
		return
	}
	m.mu.Lock()
	isLocal := username == m.username
	m.mu.Unlock()
	m.store.RemoveMember(chatID, username, isLocal)
}

// run owns the connect/reconnect loop for one session. Each iteration
// refreshes the projection from the directory concurrently with dialing,
// so history lost during a connection gap is recovered on reconnect.
func (m *Manager) run(ctx context.Context, username string) {
	for {
		go m.loadInitialData(ctx, username)

		conn, err := m.dial(ctx, m.cfg.SocketURL, username)
		if err != nil {
			m.logger.Warn("Chat socket not established", "error", err)
			m.mu.Lock()
			m.state = StateDisconnected
			m.mu.Unlock()
			if !m.awaitReconnect(ctx) {
				return
			}
			m.mu.Lock()
			m.state = StateConnecting
			m.mu.Unlock()
			continue
		}

		pumpCtx, cancelPump := context.WithCancel(ctx)
		m.mu.Lock()
		if m.reason == CloseUserInitiated {
			// Disconnect raced the dial; drop the fresh connection.
			m.mu.Unlock()
			cancelPump()
			_ = conn.Close()
			m.settle()
			return
		}
		m.conn = conn
		m.state = StateConnected
		m.mu.Unlock()
		m.store.SetConnected(true)
		m.logger.Info("Chat socket connected", "username", username)

		go m.pump(pumpCtx, conn)

		var ev socket.Event
		select {
		case ev = <-conn.Lifecycle():
		case <-ctx.Done():
			cancelPump()
			_ = conn.Close()
			m.settle()
			return
		}
		cancelPump()

		m.mu.Lock()
		userClosed := m.reason == CloseUserInitiated
		if !userClosed {
			m.reason = CloseError
		}
		m.conn = nil
		m.state = StateDisconnected
		m.mu.Unlock()
		m.store.SetConnected(false)

		if userClosed || ev.Kind == socket.ClosedNormally {
			m.logger.Info("Chat session closed", "username", username)
			return
		}

		m.logger.Warn("Chat socket disconnected", "cause", ev.Cause)
		if !m.awaitReconnect(ctx) {
			return
		}
		m.mu.Lock()
		m.state = StateConnecting
		m.reason = CloseUnknown
		m.mu.Unlock()
	}
}

// awaitReconnect waits the fixed reconnect delay. It returns false when
// the session should stop instead of re-dialing.
func (m *Manager) awaitReconnect(ctx context.Context) bool {
	m.notify("No connection. Reconnecting...")

	delay := m.cfg.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason != CloseUserInitiated
}

// pump consumes decoded server events for the lifetime of one connection.
// A malformed frame is reported and skipped; it never tears the stream
// down.
func (m *Manager) pump(ctx context.Context, conn Conn) {
	for frame := range conn.Frames(ctx) {
		ev, err := wire.DecodeServerEvent(frame)
		if err != nil {
			m.logger.Warn("Undecodable server event", "error", err)
			m.notify("Error while handling events: " + err.Error())
			continue
		}
		m.apply(ev)
	}
}

func (m *Manager) apply(ev *wire.ServerEvent) {
	switch ev.Type {
	case wire.EventNewMessage:
		m.store.PrependMessage(ev.Message.ToMessage())
	case wire.EventNewChat:
		m.store.AppendChat(ev.Chat.ToChat())
	case wire.EventDeleteChat:
		m.store.RemoveChat(ev.ChatID)
	}
}

// loadInitialData rehydrates the projection from the directory. Fetch
// failures degrade to empty collections inside the directory client.
func (m *Manager) loadInitialData(ctx context.Context, username string) {
	m.store.SetLoading(true)
	chats := m.dir.GetAllChatsForUser(ctx, username)
	messages := m.dir.GetAllMessages(ctx, username)
	m.store.ReplaceAll(chats, messages)
	m.store.SetLoading(false)
}

func (m *Manager) settle() {
	m.mu.Lock()
	m.state = StateDisconnected
	m.conn = nil
	m.mu.Unlock()
	m.store.SetConnected(false)
}

func (m *Manager) notify(msg string) {
	select {
	case m.notices <- msg:
	default:
		m.logger.Debug("Notice dropped", "notice", msg)
	}
}
