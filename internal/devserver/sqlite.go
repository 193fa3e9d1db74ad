package devserver

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/letterpet/client-go/internal/wire"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-backed storage at the given path.
func NewSQLite(dbPath string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode keeps concurrent REST and socket handlers from tripping
	// over each other.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_group INTEGER NOT NULL,
		created_by TEXT NOT NULL,
		last_message_id TEXT
	);

	CREATE TABLE IF NOT EXISTS chat_members (
		chat_id TEXT NOT NULL,
		username TEXT NOT NULL,
		joined_at INTEGER NOT NULL,
		PRIMARY KEY (chat_id, username)
	);
	CREATE INDEX IF NOT EXISTS idx_members_username ON chat_members(username);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		username TEXT NOT NULL,
		text TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, timestamp);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ChatsForUser returns the chats the user is a member of.
func (s *SQLiteStorage) ChatsForUser(ctx context.Context, username string) ([]wire.ChatWire, error) {
	query := `
		SELECT c.id, c.name, c.is_group, c.created_by, c.last_message_id
		FROM chats c
		JOIN chat_members m ON m.chat_id = c.id
		WHERE m.username = ?
		ORDER BY m.joined_at`

	rows, err := s.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var chats []wire.ChatWire
	for rows.Next() {
		var chat wire.ChatWire
		var isGroup int
		var lastMessageID sql.NullString
		if err := rows.Scan(&chat.ID, &chat.Name, &isGroup, &chat.CreatedBy, &lastMessageID); err != nil {
			return nil, fmt.Errorf("scan chat row: %w", err)
		}
		chat.IsGroup = isGroup != 0
		if lastMessageID.Valid {
			chat.LastMessageID = &lastMessageID.String
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// MessagesForUser returns all messages in the user's chats, most recent
// first.
func (s *SQLiteStorage) MessagesForUser(ctx context.Context, username string) ([]wire.MessageWire, error) {
	query := `
		SELECT msg.id, msg.chat_id, msg.username, msg.text, msg.timestamp
		FROM messages msg
		JOIN chat_members m ON m.chat_id = msg.chat_id
		WHERE m.username = ?
		ORDER BY msg.timestamp DESC`

	rows, err := s.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []wire.MessageWire
	for rows.Next() {
		var msg wire.MessageWire
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Username, &msg.Text, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CreateChat stores a new chat and enrolls its creator as a member.
func (s *SQLiteStorage) CreateChat(ctx context.Context, chat wire.ChatWire) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create chat: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	isGroup := 0
	if chat.IsGroup {
		isGroup = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chats (id, name, is_group, created_by) VALUES (?, ?, ?, ?)`,
		chat.ID, chat.Name, isGroup, chat.CreatedBy,
	); err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_members (chat_id, username, joined_at) VALUES (?, ?, ?)`,
		chat.ID, chat.CreatedBy, time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert creator membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create chat: %w", err)
	}
	return nil
}

// DeleteChat removes a chat with its messages and membership.
func (s *SQLiteStorage) DeleteChat(ctx context.Context, chatID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete chat: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, chatID)
	if err != nil {
		return false, fmt.Errorf("delete chat: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete chat rows affected: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_members WHERE chat_id = ?`, chatID); err != nil {
		return false, fmt.Errorf("delete chat members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return false, fmt.Errorf("delete chat messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete chat: %w", err)
	}
	return deleted > 0, nil
}

// Members returns the member identities of a chat in join order.
func (s *SQLiteStorage) Members(ctx context.Context, chatID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username FROM chat_members WHERE chat_id = ? ORDER BY joined_at`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan member row: %w", err)
		}
		members = append(members, name)
	}
	return members, rows.Err()
}

// AddMember enrolls an identity in a chat. Re-adding an existing member is
// a no-op.
func (s *SQLiteStorage) AddMember(ctx context.Context, chatID, username string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO chat_members (chat_id, username, joined_at) VALUES (?, ?, ?)`,
		chatID, username, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// RemoveMember removes an identity from a chat.
func (s *SQLiteStorage) RemoveMember(ctx context.Context, chatID, username string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_members WHERE chat_id = ? AND username = ?`, chatID, username)
	if err != nil {
		return false, fmt.Errorf("delete membership: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete membership rows affected: %w", err)
	}
	return deleted > 0, nil
}

// SaveMessage stores a message and updates the chat's last message id.
func (s *SQLiteStorage) SaveMessage(ctx context.Context, msg wire.MessageWire) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save message: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, username, text, timestamp) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ChatID, msg.Username, msg.Text, msg.Timestamp,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE chats SET last_message_id = ? WHERE id = ?`, msg.ID, msg.ChatID,
	); err != nil {
		return fmt.Errorf("update last message id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save message: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
