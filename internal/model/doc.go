// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types used throughout the application
// for representing language-learning chat sessions.
//
// # Key Types
//
//   - Conversation: ordered message sequence plus per-conversation settings
//   - Message: single message with type, content, optional reasoning,
//     attachments, and a weak parent-message back-reference
//   - MessageType: role enumeration (user, chat-mate, editor-mate)
//   - Settings: target language, model, personalities, and feedback options
//
// # Streaming Lifecycle
//
// A generated message starts with a temporary id and IsStreaming set:
//
//	msg := model.NewStreamingMessage(model.TypeChatMate, "")
//	msg.AppendContent("Hej")
//	msg.FinalizeStream(&model.Metadata{Model: "gpt-4o"})
//
// Once finalized, content is frozen and the orchestrator reconciles the
// temporary id with the store-assigned one.
package model
