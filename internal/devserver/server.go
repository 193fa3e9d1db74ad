package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/letterpet/client-go/internal/wire"
)

// Server serves the directory REST routes and the chat socket.
type Server struct {
	storage Storage
	hub     *Hub
}

// New creates a loopback server over the given storage.
func New(storage Storage) *Server {
	return &Server{
		storage: storage,
		hub:     NewHub(),
	}
}

// Router builds the route table matching the client's expectations.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/chat-socket", s.handleSocket)
	r.Get("/{username}/messages", s.handleMessages)
	r.Get("/{username}/chats", s.handleChats)
	r.Post("/new/chat", s.handleCreateChat)
	r.Delete("/chat/{chatID}", s.handleDeleteChat)
	r.Get("/chat/{chatID}/members", s.handleGetMembers)
	r.Post("/new/member", s.handleAddMember)
	r.Delete("/chat/{chatID}/members/{username}", s.handleRemoveMember)

	return r
}

// handleSocket upgrades to the chat socket and relays messages for one
// identity until the peer goes away.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "username required", http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept chat socket", "error", err, "username", username)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close chat socket", "error", closeErr, "username", username)
		}
	}()

	s.hub.Register(username, ws)
	defer s.hub.Unregister(username, ws)

	ctx := r.Context()
	for {
		typ, frame, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Chat socket closed by client", "username", username)
			} else {
				slog.Warn("Chat socket read error", "error", err, "username", username)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		s.relayMessage(ctx, username, frame)
	}
}

// relayMessage persists an inbound message frame and pushes it to every
// member of the chat, sender included.
func (s *Server) relayMessage(ctx context.Context, username string, frame []byte) {
	req, err := wire.DecodeMessageRequest(frame)
	if err != nil {
		slog.Warn("Undecodable message frame", "username", username, "error", err)
		return
	}

	msg := wire.MessageWire{
		ID:        uuid.NewString(),
		ChatID:    req.ChatID,
		Username:  username,
		Text:      req.Text,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := s.storage.SaveMessage(ctx, msg); err != nil {
		slog.Error("Failed to save message", "chat_id", req.ChatID, "error", err)
		return
	}

	members, err := s.storage.Members(ctx, req.ChatID)
	if err != nil {
		slog.Error("Failed to load members for push", "chat_id", req.ChatID, "error", err)
		return
	}
	s.hub.Push(ctx, members, &wire.ServerEvent{
		Type:    wire.EventNewMessage,
		Message: &msg,
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	messages, err := s.storage.MessagesForUser(r.Context(), username)
	if err != nil {
		slog.Error("Failed to list messages", "username", username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []wire.MessageWire{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	chats, err := s.storage.ChatsForUser(r.Context(), username)
	if err != nil {
		slog.Error("Failed to list chats", "username", username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if chats == nil {
		chats = []wire.ChatWire{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req wire.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid chat request", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.CreatedBy == "" {
		http.Error(w, "name and createdBy required", http.StatusBadRequest)
		return
	}

	chat := wire.ChatWire{
		ID:        uuid.NewString(),
		Name:      req.Name,
		IsGroup:   req.IsGroup,
		CreatedBy: req.CreatedBy,
	}
	if err := s.storage.CreateChat(r.Context(), chat); err != nil {
		slog.Error("Failed to create chat", "name", req.Name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	slog.Info("Chat created", "chat_id", chat.ID, "created_by", chat.CreatedBy)
	writeJSON(w, http.StatusOK, chat)
}

// handleDeleteChat removes a chat and pushes DeleteChat to its members.
// The requester also drops the chat from the REST response path; the
// duplicate removal is idempotent on the client.
func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	members, err := s.storage.Members(r.Context(), chatID)
	if err != nil {
		slog.Error("Failed to load members", "chat_id", chatID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	deleted, err := s.storage.DeleteChat(r.Context(), chatID)
	if err != nil {
		slog.Error("Failed to delete chat", "chat_id", chatID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}

	s.hub.Push(r.Context(), members, &wire.ServerEvent{
		Type:   wire.EventDeleteChat,
		ChatID: chatID,
	})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetMembers(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	members, err := s.storage.Members(r.Context(), chatID)
	if err != nil {
		slog.Error("Failed to list members", "chat_id", chatID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if members == nil {
		members = []string{}
	}
	writeJSON(w, http.StatusOK, members)
}

// handleAddMember enrolls an identity and pushes the chat to them as
// NewChat, so their client picks the conversation up without a refetch.
func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req wire.MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid member request", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.ChatID == "" {
		http.Error(w, "username and chatId required", http.StatusBadRequest)
		return
	}

	chats, err := s.storage.ChatsForUser(r.Context(), req.Username)
	if err == nil {
		for _, c := range chats {
			if c.ID == req.ChatID {
				// Already a member.
				w.WriteHeader(http.StatusOK)
				return
			}
		}
	}

	if err := s.storage.AddMember(r.Context(), req.ChatID, req.Username); err != nil {
		slog.Error("Failed to add member", "chat_id", req.ChatID, "username", req.Username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if chat, ok := s.chatByID(r.Context(), req.Username, req.ChatID); ok {
		s.hub.Push(r.Context(), []string{req.Username}, &wire.ServerEvent{
			Type: wire.EventNewChat,
			Chat: &chat,
		})
	}
	w.WriteHeader(http.StatusOK)
}

// handleRemoveMember removes an identity and pushes DeleteChat to them so
// the conversation disappears from their client.
func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	username := chi.URLParam(r, "username")

	removed, err := s.storage.RemoveMember(r.Context(), chatID, username)
	if err != nil {
		slog.Error("Failed to remove member", "chat_id", chatID, "username", username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !removed {
		http.Error(w, "membership not found", http.StatusNotFound)
		return
	}

	s.hub.Push(r.Context(), []string{username}, &wire.ServerEvent{
		Type:   wire.EventDeleteChat,
		ChatID: chatID,
	})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) chatByID(ctx context.Context, username, chatID string) (wire.ChatWire, bool) {
	chats, err := s.storage.ChatsForUser(ctx, username)
	if err != nil {
		slog.Warn("Failed to load chat for push", "chat_id", chatID, "error", err)
		return wire.ChatWire{}, false
	}
	for _, c := range chats {
		if c.ID == chatID {
			return c, true
		}
	}
	return wire.ChatWire{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}
