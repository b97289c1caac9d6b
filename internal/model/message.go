// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// MessageType identifies which conversational role produced a message.
type MessageType string

const (
	// TypeUser is a message typed by the learner.
	TypeUser MessageType = "user"

	// TypeChatMate is a reply from the native-speaker role-play agent.
	TypeChatMate MessageType = "chat-mate"

	// TypeEditorMate is commentary from the teaching/correction agent.
	TypeEditorMate MessageType = "editor-mate"
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	return string(t)
}

// DisplayName returns a human-readable name for the message type.
func (t MessageType) DisplayName() string {
	switch t {
	case TypeUser:
		return "You"
	case TypeChatMate:
		return "Chat Mate"
	case TypeEditorMate:
		return "Editor Mate"
	default:
		return string(t)
	}
}

// IsValid reports whether t is one of the known message types.
func (t MessageType) IsValid() bool {
	switch t {
	case TypeUser, TypeChatMate, TypeEditorMate:
		return true
	}
	return false
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// AttachmentKind distinguishes attachment references.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
)

// Attachment is an immutable image reference carried by a message. The
// list is set once at message creation and never mutated afterwards.
type Attachment struct {
	Kind AttachmentKind `json:"kind"`
	URL  string         `json:"url"`
}

// =============================================================================
// METADATA
// =============================================================================

// Metadata holds generation statistics, attached only on stream completion.
type Metadata struct {
	Model          string        `json:"model,omitempty"`
	StartTime      time.Time     `json:"start_time,omitempty"`
	EndTime        time.Time     `json:"end_time,omitempty"`
	GenerationTime time.Duration `json:"generation_time_ns,omitempty"`
}

// =============================================================================
// MESSAGE
// =============================================================================

// TempIDPrefix marks locally generated ids that have not yet been
// reconciled with a store-assigned permanent id.
const TempIDPrefix = "tmp_"

// Message represents a single message in a conversation.
//
// A message created for an in-flight generation starts with a temporary id
// and IsStreaming set; the orchestrator swaps in the store-assigned id and
// clears the flag once the stream reaches its terminal event. Exactly one
// network operation may be appending to a given message at a time.
type Message struct {
	// Identity
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`

	// Content channels. Reasoning streams independently from Content.
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`

	// ParentMessageID is a weak back-reference marking which message this
	// one comments on. Set at creation, never mutated.
	ParentMessageID string `json:"parent_message_id,omitempty"`

	// Attachments are set once at creation, immutable after.
	Attachments []Attachment `json:"attachments,omitempty"`

	// Streaming state (not persisted)
	IsStreaming bool `json:"-"`
	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	contentStream   strings.Builder
	reasoningStream strings.Builder

	// Metadata is attached only on stream completion.
	Metadata *Metadata `json:"metadata,omitempty"`
}

// NewTempID generates a temporary local message id.
func NewTempID() string {
	return TempIDPrefix + uuid.New().String()
}

// NewUserMessage creates a finished user message with optional attachments.
func NewUserMessage(content string, attachments []Attachment) *Message {
	return &Message{
		ID:          NewTempID(),
		Type:        TypeUser,
		Content:     content,
		Attachments: attachments,
		Timestamp:   time.Now(),
	}
}

// NewStreamingMessage creates a pending message for an in-flight generation.
// parentID may be empty for messages that comment on nothing.
func NewStreamingMessage(t MessageType, parentID string) *Message {
	return &Message{
		ID:              NewTempID(),
		Type:            t,
		ParentMessageID: parentID,
		IsStreaming:     true,
		Timestamp:       time.Now(),
	}
}

// IsTemporary reports whether the message still carries a local id.
func (m *Message) IsTemporary() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// AppendContent appends a content delta to a streaming message.
func (m *Message) AppendContent(delta string) {
	if m.IsStreaming {
		m.contentStream.WriteString(delta)
	}
}

// AppendReasoning appends a reasoning delta to a streaming message.
func (m *Message) AppendReasoning(delta string) {
	if m.IsStreaming {
		m.reasoningStream.WriteString(delta)
	}
}

// FinalizeStream freezes the streamed text and attaches metadata.
// The content is immutable from this point on.
func (m *Message) FinalizeStream(meta *Metadata) {
	if !m.IsStreaming {
		return
	}

	m.Content = m.contentStream.String()
	m.Reasoning = m.reasoningStream.String()
	m.contentStream.Reset()
	m.reasoningStream.Reset()
	m.IsStreaming = false

	if meta != nil {
		if meta.GenerationTime == 0 && !meta.StartTime.IsZero() && !meta.EndTime.IsZero() {
			meta.GenerationTime = meta.EndTime.Sub(meta.StartTime)
		}
		m.Metadata = meta
	}
}

// AbortStream discards any partially streamed text and clears the
// streaming flag. Content and Reasoning keep their pre-stream values,
// which is what regeneration needs when a re-run fails midway.
func (m *Message) AbortStream() {
	if !m.IsStreaming {
		return
	}
	m.contentStream.Reset()
	m.reasoningStream.Reset()
	m.IsStreaming = false
}

// DisplayContent returns the content to display (streaming or final).
func (m *Message) DisplayContent() string {
	if m.IsStreaming {
		return m.contentStream.String()
	}
	return m.Content
}

// DisplayReasoning returns the reasoning text to display (streaming or final).
func (m *Message) DisplayReasoning() string {
	if m.IsStreaming {
		return m.reasoningStream.String()
	}
	return m.Reasoning
}

// IsEmpty returns true if the message has no content in either channel.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0 && m.contentStream.Len() == 0
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	content := m.DisplayContent()
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Clone returns a copy of the message safe to hand to other goroutines.
// The streaming builders are not copied; the clone carries a display
// snapshot of whatever has streamed so far.
func (m *Message) Clone() *Message {
	c := &Message{
		ID:              m.ID,
		Type:            m.Type,
		Timestamp:       m.Timestamp,
		Content:         m.DisplayContent(),
		Reasoning:       m.DisplayReasoning(),
		ParentMessageID: m.ParentMessageID,
		IsStreaming:     m.IsStreaming,
	}
	if len(m.Attachments) > 0 {
		c.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Metadata != nil {
		meta := *m.Metadata
		c.Metadata = &meta
	}
	return c
}
