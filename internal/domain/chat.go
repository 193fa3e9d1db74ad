// Package domain contains core model types for the letterpet chat client.
package domain

import (
	"time"
)

// Chat is a conversation the local user participates in. The ID is assigned
// by the server and never changes; CreatedBy is the identity of the creator.
type Chat struct {
	ID            string
	Name          string
	IsGroup       bool
	CreatedBy     string
	LastMessageID string // empty when the chat has no messages yet
}

// Message is a single chat message. Messages are immutable once created.
type Message struct {
	Text      string
	Timestamp time.Time
	Username  string
	ChatID    string
}

// Before reports whether m was sent before other, by timestamp.
func (m Message) Before(other Message) bool {
	return m.Timestamp.Before(other.Timestamp)
}
