// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// =============================================================================
// FEEDBACK STYLE
// =============================================================================

// FeedbackStyle controls the tone of Editor Mate commentary.
type FeedbackStyle string

const (
	FeedbackEncouraging FeedbackStyle = "encouraging"
	FeedbackDirect      FeedbackStyle = "direct"
	FeedbackDetailed    FeedbackStyle = "detailed"
)

// IsValid reports whether s is a known feedback style.
func (s FeedbackStyle) IsValid() bool {
	switch s {
	case FeedbackEncouraging, FeedbackDirect, FeedbackDetailed:
		return true
	}
	return false
}

// =============================================================================
// CONVERSATION SETTINGS
// =============================================================================

// Settings holds the per-conversation configuration captured at send time.
type Settings struct {
	TargetLanguage        string        `json:"target_language"`
	Model                 string        `json:"model"`
	ChatMatePersonality   string        `json:"chat_mate_personality,omitempty"`
	EditorMatePersonality string        `json:"editor_mate_personality,omitempty"`
	FeedbackStyle         FeedbackStyle `json:"feedback_style,omitempty"`
	FeedbackLanguage      string        `json:"feedback_language,omitempty"`
	ProficiencyLevel      string        `json:"proficiency_level,omitempty"`
	CulturalContext       bool          `json:"cultural_context,omitempty"`
	ProgressiveComplexity bool          `json:"progressive_complexity,omitempty"`
	EnableReasoning       bool          `json:"enable_reasoning,omitempty"`
}

// =============================================================================
// CONVERSATION
// =============================================================================

// Conversation holds an ordered message sequence plus its settings.
// Insertion order is display order.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []*Message `json:"messages"`

	Settings Settings `json:"settings"`
}

// NewConversation creates an empty conversation with the given settings.
// The id is assigned by the store on creation; callers receive it there.
func NewConversation(settings Settings) *Conversation {
	now := time.Now()
	return &Conversation{
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
		Settings:  settings,
	}
}

// =============================================================================
// MESSAGE LIST OPERATIONS
// =============================================================================

// Every update to the message list is a pure append-or-replace-by-id
// operation; the orchestrator serializes writers.

// Append adds a message to the end of the conversation.
func (c *Conversation) Append(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
}

// ReplaceID swaps a message's id in place, rewriting parent links that
// referenced the old id. Used for temp-id reconciliation.
func (c *Conversation) ReplaceID(oldID, newID string) {
	for _, m := range c.Messages {
		if m.ID == oldID {
			m.ID = newID
		}
		if m.ParentMessageID == oldID {
			m.ParentMessageID = newID
		}
	}
	c.UpdatedAt = time.Now()
}

// Remove deletes a message by id, preserving order of the rest.
func (c *Conversation) Remove(id string) bool {
	for i, m := range c.Messages {
		if m.ID == id {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			c.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// Find returns the message with the given id, or nil.
func (c *Conversation) Find(id string) *Message {
	for _, m := range c.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// IndexOf returns the position of a message id, or -1.
func (c *Conversation) IndexOf(id string) int {
	for i, m := range c.Messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// UpToAndIncluding returns clones of every message up to and including id,
// in order. Returns nil if the id is not present. Used by fork.
func (c *Conversation) UpToAndIncluding(id string) []*Message {
	idx := c.IndexOf(id)
	if idx < 0 {
		return nil
	}
	out := make([]*Message, 0, idx+1)
	for _, m := range c.Messages[:idx+1] {
		out = append(out, m.Clone())
	}
	return out
}

// Snapshot returns clones of all messages for rendering.
func (c *Conversation) Snapshot() []*Message {
	out := make([]*Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		out = append(out, m.Clone())
	}
	return out
}

