// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable conversation persistence.
package storage

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/lingomate/lingomate/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotFound is returned when a conversation or message doesn't exist.
var ErrNotFound = errors.New("not found")

// StorageError wraps a driver failure. It propagates as a user-visible
// notification and never rolls back already-applied in-memory state.
type StorageError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// =============================================================================
// STORE
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	title_auto INTEGER NOT NULL DEFAULT 1,
	settings   TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	type            TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	reasoning       TEXT NOT NULL DEFAULT '',
	parent_id       TEXT NOT NULL DEFAULT '',
	attachments     TEXT NOT NULL DEFAULT '',
	metadata        TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
`

// Store is the SQLite-backed conversation store. It is an explicitly
// constructed, dependency-injected instance; its lifecycle belongs to the
// application entry point.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrap("open", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, wrap("open", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, wrap("migrate", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an in-memory store, mainly for tests.
func OpenInMemory() (*Store, error) {
	return Open(":memory:")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// ConversationMeta is the listing row for the sidebar.
type ConversationMeta struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

// CreateConversation persists a new conversation with the given settings
// and returns it with its assigned id.
func (s *Store) CreateConversation(settings model.Settings, title string) (*model.Conversation, error) {
	conv := model.NewConversation(settings)
	conv.ID = generateConversationID()
	conv.Title = title

	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, wrap("create conversation", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO conversations (id, title, title_auto, settings, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, title, boolInt(title == ""), string(raw), conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return nil, wrap("create conversation", err)
	}
	return conv, nil
}

// ListConversations returns metadata for all conversations, most recently
// updated first.
func (s *Store) ListConversations() ([]ConversationMeta, error) {
	rows, err := s.db.Query(
		`SELECT c.id, c.title, c.created_at, c.updated_at,
		        (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		 FROM conversations c ORDER BY c.updated_at DESC`)
	if err != nil {
		return nil, wrap("list conversations", err)
	}
	defer rows.Close()

	var metas []ConversationMeta
	for rows.Next() {
		var m ConversationMeta
		if err := rows.Scan(&m.ID, &m.Title, &m.CreatedAt, &m.UpdatedAt, &m.MessageCount); err != nil {
			return nil, wrap("list conversations", err)
		}
		metas = append(metas, m)
	}
	return metas, wrap("list conversations", rows.Err())
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(id string) error {
	res, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return wrap("delete conversation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wrap("delete conversation", ErrNotFound)
	}
	return nil
}

// GetConversationSettings returns the settings for a conversation.
func (s *Store) GetConversationSettings(id string) (model.Settings, error) {
	var raw string
	err := s.db.QueryRow(`SELECT settings FROM conversations WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Settings{}, wrap("get settings", ErrNotFound)
	}
	if err != nil {
		return model.Settings{}, wrap("get settings", err)
	}
	var settings model.Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return model.Settings{}, wrap("get settings", err)
	}
	return settings, nil
}

// UpdateConversationSettings replaces the settings for a conversation.
func (s *Store) UpdateConversationSettings(id string, settings model.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return wrap("update settings", err)
	}
	res, err := s.db.Exec(
		`UPDATE conversations SET settings = ?, updated_at = ? WHERE id = ?`,
		string(raw), time.Now(), id)
	if err != nil {
		return wrap("update settings", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wrap("update settings", ErrNotFound)
	}
	return nil
}

// =============================================================================
// MESSAGES
// =============================================================================

// AddMessage persists a message and returns a copy carrying the
// store-assigned permanent id and timestamp.
func (s *Store) AddMessage(conversationID string, msg *model.Message) (*model.Message, error) {
	stored := msg.Clone()
	stored.ID = generateMessageID()
	stored.IsStreaming = false
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now()
	}

	attachments, metadata, err := encodeExtras(stored)
	if err != nil {
		return nil, wrap("add message", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO messages (id, conversation_id, type, content, reasoning, parent_id, attachments, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, conversationID, string(stored.Type), stored.Content, stored.Reasoning,
		stored.ParentMessageID, attachments, metadata, stored.Timestamp,
	)
	if err != nil {
		return nil, wrap("add message", err)
	}

	if _, err := s.db.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		time.Now(), conversationID); err != nil {
		return nil, wrap("add message", err)
	}
	return stored, nil
}

// MessageUpdate carries the partial fields of an update; nil means keep.
type MessageUpdate struct {
	Content   *string
	Reasoning *string
	Metadata  *model.Metadata
}

// UpdateMessage applies a partial update to a persisted message.
func (s *Store) UpdateMessage(id string, upd MessageUpdate) error {
	cur, convID, err := s.getMessage(id)
	if err != nil {
		return err
	}

	if upd.Content != nil {
		cur.Content = *upd.Content
	}
	if upd.Reasoning != nil {
		cur.Reasoning = *upd.Reasoning
	}
	if upd.Metadata != nil {
		meta := *upd.Metadata
		cur.Metadata = &meta
	}

	_, metadata, err := encodeExtras(cur)
	if err != nil {
		return wrap("update message", err)
	}
	if _, err := s.db.Exec(
		`UPDATE messages SET content = ?, reasoning = ?, metadata = ? WHERE id = ?`,
		cur.Content, cur.Reasoning, metadata, id); err != nil {
		return wrap("update message", err)
	}
	_, err = s.db.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, time.Now(), convID)
	return wrap("update message", err)
}

// DeleteMessage removes a persisted message.
func (s *Store) DeleteMessage(id string) error {
	res, err := s.db.Exec(`DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return wrap("delete message", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wrap("delete message", ErrNotFound)
	}
	return nil
}

// GetMessages returns a conversation's messages in insertion order.
func (s *Store) GetMessages(conversationID string) ([]*model.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, type, content, reasoning, parent_id, attachments, metadata, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY rowid`, conversationID)
	if err != nil {
		return nil, wrap("get messages", err)
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, wrap("get messages", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, wrap("get messages", rows.Err())
}

// getMessage loads one message plus its conversation id.
func (s *Store) getMessage(id string) (*model.Message, string, error) {
	row := s.db.QueryRow(
		`SELECT id, type, content, reasoning, parent_id, attachments, metadata, created_at, conversation_id
		 FROM messages WHERE id = ?`, id)

	var (
		msg            model.Message
		typ            string
		attachments    string
		metadata       string
		conversationID string
	)
	err := row.Scan(&msg.ID, &typ, &msg.Content, &msg.Reasoning, &msg.ParentMessageID,
		&attachments, &metadata, &msg.Timestamp, &conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", wrap("get message", ErrNotFound)
	}
	if err != nil {
		return nil, "", wrap("get message", err)
	}
	msg.Type = model.MessageType(typ)
	if err := decodeExtras(&msg, attachments, metadata); err != nil {
		return nil, "", wrap("get message", err)
	}
	return &msg, conversationID, nil
}

// =============================================================================
// ROW HELPERS
// =============================================================================

func scanMessage(rows *sql.Rows) (*model.Message, error) {
	var (
		msg         model.Message
		typ         string
		attachments string
		metadata    string
	)
	if err := rows.Scan(&msg.ID, &typ, &msg.Content, &msg.Reasoning,
		&msg.ParentMessageID, &attachments, &metadata, &msg.Timestamp); err != nil {
		return nil, err
	}
	msg.Type = model.MessageType(typ)
	if err := decodeExtras(&msg, attachments, metadata); err != nil {
		return nil, err
	}
	return &msg, nil
}

func encodeExtras(msg *model.Message) (attachments, metadata string, err error) {
	if len(msg.Attachments) > 0 {
		raw, err := json.Marshal(msg.Attachments)
		if err != nil {
			return "", "", err
		}
		attachments = string(raw)
	}
	if msg.Metadata != nil {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return "", "", err
		}
		metadata = string(raw)
	}
	return attachments, metadata, nil
}

func decodeExtras(msg *model.Message, attachments, metadata string) error {
	if attachments != "" {
		if err := json.Unmarshal([]byte(attachments), &msg.Attachments); err != nil {
			return err
		}
	}
	if metadata != "" {
		msg.Metadata = &model.Metadata{}
		if err := json.Unmarshal([]byte(metadata), msg.Metadata); err != nil {
			return err
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// =============================================================================
// ID GENERATION
// =============================================================================

// generateConversationID creates a unique conversation ID.
func generateConversationID() string {
	return "conv_" + randomHex()
}

// generateMessageID creates a unique permanent message ID.
func generateMessageID() string {
	return "msg_" + randomHex()
}

func randomHex() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
