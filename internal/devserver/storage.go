// Package devserver implements a loopback letterpet backend: the directory
// REST routes plus the chat socket push channel, backed by SQLite. It
// exists for local development and end-to-end tests of the client; it is
// not the production server.
package devserver

import (
	"context"

	"github.com/letterpet/client-go/internal/wire"
)

// Storage persists chats, messages, and membership for the loopback
// server. Records use the wire representations since ids and epoch-milli
// timestamps are server-assigned.
type Storage interface {
	// ChatsForUser returns the chats the user is a member of.
	ChatsForUser(ctx context.Context, username string) ([]wire.ChatWire, error)

	// MessagesForUser returns all messages in the user's chats, most
	// recent first.
	MessagesForUser(ctx context.Context, username string) ([]wire.MessageWire, error)

	// CreateChat stores a new chat and enrolls its creator as a member.
	CreateChat(ctx context.Context, chat wire.ChatWire) error

	// DeleteChat removes a chat with its messages and membership. The
	// returned flag reports whether the chat existed.
	DeleteChat(ctx context.Context, chatID string) (bool, error)

	// Members returns the member identities of a chat in join order.
	Members(ctx context.Context, chatID string) ([]string, error)

	// AddMember enrolls an identity in a chat.
	AddMember(ctx context.Context, chatID, username string) error

	// RemoveMember removes an identity from a chat. The returned flag
	// reports whether the membership existed.
	RemoveMember(ctx context.Context, chatID, username string) (bool, error)

	// SaveMessage stores a message and updates the chat's last message id.
	SaveMessage(ctx context.Context, msg wire.MessageWire) error

	// Close releases the underlying database.
	Close() error
}
