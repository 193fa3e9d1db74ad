// Package wire defines the JSON payloads exchanged with the letterpet
// backend: text frames on the chat socket and request/response bodies on
// the directory REST endpoints.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/letterpet/client-go/internal/domain"
)

// Server event discriminator values.
const (
	EventNewMessage = "NewMessage"
	EventNewChat    = "NewChat"
	EventDeleteChat = "DeleteChat"
)

var (
	errUnknownEventType = errors.New("unknown server event type")
	errMissingPayload   = errors.New("server event missing payload")
)

// MessageRequest is the outbound frame sent when the user posts a message.
type MessageRequest struct {
	Text   string `json:"text"`
	ChatID string `json:"chatId"`
}

// ChatRequest is the body of the create-chat directory call.
type ChatRequest struct {
	CreatedBy string `json:"createdBy"`
	Name      string `json:"name"`
	IsGroup   bool   `json:"isGroup"`
}

// MemberRequest is the body of the add-member directory call.
type MemberRequest struct {
	Username string `json:"username"`
	ChatID   string `json:"chatId"`
}

// MessageWire is a message as the server represents it. Timestamp is
// epoch milliseconds.
type MessageWire struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Username  string `json:"username"`
	ID        string `json:"id"`
	ChatID    string `json:"chatId"`
}

// ToMessage converts the wire form into the domain model.
func (m MessageWire) ToMessage() domain.Message {
	return domain.Message{
		Text:      m.Text,
		Timestamp: time.UnixMilli(m.Timestamp),
		Username:  m.Username,
		ChatID:    m.ChatID,
	}
}

// ChatWire is a chat as the server represents it.
type ChatWire struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	IsGroup       bool    `json:"isGroup"`
	CreatedBy     string  `json:"createdBy"`
	LastMessageID *string `json:"lastMessageId,omitempty"`
}

// ToChat converts the wire form into the domain model.
func (c ChatWire) ToChat() domain.Chat {
	chat := domain.Chat{
		ID:        c.ID,
		Name:      c.Name,
		IsGroup:   c.IsGroup,
		CreatedBy: c.CreatedBy,
	}
	if c.LastMessageID != nil {
		chat.LastMessageID = *c.LastMessageID
	}
	return chat
}

// ServerEvent is the tagged union pushed by the server over the chat
// socket. Exactly one payload field is set, selected by Type.
type ServerEvent struct {
	Type    string       `json:"type"`
	Message *MessageWire `json:"message,omitempty"`
	Chat    *ChatWire    `json:"chat,omitempty"`
	ChatID  string       `json:"chatId,omitempty"`
}

// EncodeMessageRequest builds the outbound frame for a user message.
func EncodeMessageRequest(text, chatID string) ([]byte, error) {
	frame, err := json.Marshal(MessageRequest{Text: text, ChatID: chatID})
	if err != nil {
		return nil, fmt.Errorf("encode message request: %w", err)
	}
	return frame, nil
}

// DecodeMessageRequest parses an outbound message frame. Used by the
// server side of a loopback setup.
func DecodeMessageRequest(frame []byte) (*MessageRequest, error) {
	var req MessageRequest
	if err := json.Unmarshal(frame, &req); err != nil {
		return nil, fmt.Errorf("decode message request: %w", err)
	}
	return &req, nil
}

// EncodeServerEvent serializes a server event into a text frame.
func EncodeServerEvent(ev *ServerEvent) ([]byte, error) {
	frame, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode server event: %w", err)
	}
	return frame, nil
}

// DecodeServerEvent parses an inbound frame and validates that the payload
// matching the discriminator is present.
func DecodeServerEvent(frame []byte) (*ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(frame, &ev); err != nil {
		return nil, fmt.Errorf("decode server event: %w", err)
	}
	switch ev.Type {
	case EventNewMessage:
		if ev.Message == nil {
			return nil, fmt.Errorf("%w: %s", errMissingPayload, ev.Type)
		}
	case EventNewChat:
		if ev.Chat == nil {
			return nil, fmt.Errorf("%w: %s", errMissingPayload, ev.Type)
		}
	case EventDeleteChat:
		if ev.ChatID == "" {
			return nil, fmt.Errorf("%w: %s", errMissingPayload, ev.Type)
		}
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownEventType, ev.Type)
	}
	return &ev, nil
}
