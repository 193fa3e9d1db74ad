// Package directory talks to the letterpet REST backend for chat,
// message-history, and membership CRUD. It is a plain request/response
// collaborator; the chat socket is handled elsewhere.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/letterpet/client-go/internal/domain"
	"github.com/letterpet/client-go/internal/wire"
)

// Service defines the directory calls the session manager depends on.
//
// List fetches never fail: any transport or server error degrades to an
// empty collection at this boundary. Mutations return an error carrying a
// human-readable message; the caller decides whether to surface it.
type Service interface {
	GetAllMessages(ctx context.Context, username string) []domain.Message
	GetAllChatsForUser(ctx context.Context, username string) []domain.Chat
	CreateChat(ctx context.Context, req wire.ChatRequest) (domain.Chat, error)
	DeleteChat(ctx context.Context, chatID string) error
	GetChatMembers(ctx context.Context, chatID string) []string
	AddMemberToChat(ctx context.Context, username, chatID string) error
	RemoveMemberFromChat(ctx context.Context, username, chatID string) error
}

// HTTPClient implements Service against the letterpet REST routes.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates a directory client for the given base URL.
func NewHTTPClient(baseURL string, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// GetAllMessages fetches the full message history visible to a user.
func (c *HTTPClient) GetAllMessages(ctx context.Context, username string) []domain.Message {
	var responses []wire.MessageWire
	path := "/" + url.PathEscape(username) + "/messages"
	if err := c.getJSON(ctx, path, &responses); err != nil {
		c.logger.Warn("Message history fetch failed", "username", username, "error", err)
		return nil
	}
	messages := make([]domain.Message, 0, len(responses))
	for _, r := range responses {
		messages = append(messages, r.ToMessage())
	}
	return messages
}

// GetAllChatsForUser fetches the chats a user is a member of.
func (c *HTTPClient) GetAllChatsForUser(ctx context.Context, username string) []domain.Chat {
	var responses []wire.ChatWire
	path := "/" + url.PathEscape(username) + "/chats"
	if err := c.getJSON(ctx, path, &responses); err != nil {
		c.logger.Warn("Chat list fetch failed", "username", username, "error", err)
		return nil
	}
	chats := make([]domain.Chat, 0, len(responses))
	for _, r := range responses {
		chats = append(chats, r.ToChat())
	}
	return chats
}

// CreateChat registers a new chat owned by req.CreatedBy.
func (c *HTTPClient) CreateChat(ctx context.Context, req wire.ChatRequest) (domain.Chat, error) {
	var created wire.ChatWire
	if err := c.postJSON(ctx, "/new/chat", req, &created); err != nil {
		return domain.Chat{}, fmt.Errorf("error creating chat: %w", err)
	}
	return created.ToChat(), nil
}

// DeleteChat removes a chat for all members.
func (c *HTTPClient) DeleteChat(ctx context.Context, chatID string) error {
	path := "/chat/" + url.PathEscape(chatID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("error deleting chat: %w", err)
	}
	return nil
}

// GetChatMembers fetches the member identities of a chat.
func (c *HTTPClient) GetChatMembers(ctx context.Context, chatID string) []string {
	var members []string
	path := "/chat/" + url.PathEscape(chatID) + "/members"
	if err := c.getJSON(ctx, path, &members); err != nil {
		c.logger.Warn("Member list fetch failed", "chat_id", chatID, "error", err)
		return nil
	}
	return members
}

// AddMemberToChat adds an identity to a chat.
func (c *HTTPClient) AddMemberToChat(ctx context.Context, username, chatID string) error {
	req := wire.MemberRequest{Username: username, ChatID: chatID}
	if err := c.postJSON(ctx, "/new/member", req, nil); err != nil {
		return fmt.Errorf("error adding member: %w", err)
	}
	return nil
}

// RemoveMemberFromChat removes an identity from a chat.
func (c *HTTPClient) RemoveMemberFromChat(ctx context.Context, username, chatID string) error {
	path := "/chat/" + url.PathEscape(chatID) + "/members/" + url.PathEscape(username)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("error removing member: %w", err)
	}
	return nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, payload, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
