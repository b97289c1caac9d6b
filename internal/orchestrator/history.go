// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"strings"

	"github.com/lingomate/lingomate/internal/llm"
	"github.com/lingomate/lingomate/internal/model"
	"github.com/lingomate/lingomate/internal/prompt"
)

// =============================================================================
// HISTORY CONSTRUCTION
// =============================================================================

// The two agents see different views of the same conversation. Editor Mate
// gets everything, flattened through its own viewpoint; Chat Mate gets only
// the user/chat-mate exchange and must never see Editor Mate commentary.

// editorHistory flattens the full conversation for an Editor Mate call.
// Editor Mate's own messages become assistant turns; everything else
// becomes a labelled user turn, with consecutive same-role turns merged so
// the roles alternate.
func editorHistory(msgs []*model.Message) []llm.ChatMessage {
	history := make([]llm.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.IsStreaming || (m.IsEmpty() && len(m.Attachments) == 0) {
			continue
		}
		role := llm.RoleUser
		text := m.Content
		switch m.Type {
		case model.TypeEditorMate:
			role = llm.RoleAssistant
		case model.TypeUser:
			text = "User: " + text
		case model.TypeChatMate:
			text = "Chat Mate: " + text
		}
		history = appendTurn(history, role, text, imageURLs(m))
	}
	return history
}

// chatMateHistory builds the user/chat-mate subset for a Chat Mate call.
// No editor-mate message may ever appear here.
func chatMateHistory(msgs []*model.Message) []llm.ChatMessage {
	history := make([]llm.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Type == model.TypeEditorMate {
			continue
		}
		if m.IsStreaming || (m.IsEmpty() && len(m.Attachments) == 0) {
			continue
		}
		role := llm.RoleUser
		if m.Type == model.TypeChatMate {
			role = llm.RoleAssistant
		}
		history = appendTurn(history, role, m.Content, imageURLs(m))
	}
	return history
}

// appendTurn adds a turn, merging into the previous entry when the role
// repeats so the upstream model sees strictly alternating roles. Turns with
// image parts are never merged into.
func appendTurn(history []llm.ChatMessage, role, text string, images []string) []llm.ChatMessage {
	if len(images) > 0 {
		return append(history, llm.NewMultipartMessage(role, text, images))
	}
	if n := len(history); n > 0 && history[n-1].Role == role {
		if prev, ok := history[n-1].Content.(string); ok {
			history[n-1].Content = prev + "\n\n" + text
			return history
		}
	}
	return append(history, llm.NewTextMessage(role, text))
}

// imageURLs collects the image attachment URLs of a message.
func imageURLs(m *model.Message) []string {
	var urls []string
	for _, a := range m.Attachments {
		if a.Kind == model.AttachmentImage {
			urls = append(urls, a.URL)
		}
	}
	return urls
}

// hasImageParts reports whether any history entry carries image parts,
// which triggers the client's capability check.
func hasImageParts(history []llm.ChatMessage) bool {
	for _, m := range history {
		if _, ok := m.Content.(string); !ok {
			return true
		}
	}
	return false
}

// truncateBefore returns the messages strictly preceding the given id.
func truncateBefore(msgs []*model.Message, id string) []*model.Message {
	for i, m := range msgs {
		if m.ID == id {
			return msgs[:i]
		}
	}
	return msgs
}

// historyFor picks the right view for the message type being generated.
func historyFor(t model.MessageType, msgs []*model.Message) []llm.ChatMessage {
	if t == model.TypeChatMate {
		return chatMateHistory(msgs)
	}
	return editorHistory(msgs)
}

// promptVariables maps conversation settings onto the template variable bag.
func promptVariables(s model.Settings) prompt.Variables {
	return prompt.Variables{
		TargetLanguage:        strings.TrimSpace(s.TargetLanguage),
		ChatMatePersonality:   s.ChatMatePersonality,
		EditorMatePersonality: s.EditorMatePersonality,
		FeedbackStyle:         s.FeedbackStyle,
		FeedbackLanguage:      s.FeedbackLanguage,
		ProficiencyLevel:      s.ProficiencyLevel,
		CulturalContext:       s.CulturalContext,
		ProgressiveComplexity: s.ProgressiveComplexity,
	}
}
