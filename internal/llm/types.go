// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm provides the client for the chat-completions endpoint.
package llm

import "encoding/json"

// =============================================================================
// WIRE MESSAGES
// =============================================================================

// Message roles on the wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one entry of the request history. Content is either a
// plain string or a multipart list mixing text and image references.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// TextPart is a text segment of a multipart message content.
type TextPart struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// ImagePart is an image reference segment of a multipart message content.
type ImagePart struct {
	Type     string   `json:"type"` // always "image_url"
	ImageURL ImageURL `json:"image_url"`
}

// ImageURL wraps the image location.
type ImageURL struct {
	URL string `json:"url"`
}

// NewTextMessage creates a plain text message.
func NewTextMessage(role, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content}
}

// NewMultipartMessage creates a message mixing text with image references.
func NewMultipartMessage(role, text string, imageURLs []string) ChatMessage {
	parts := make([]any, 0, len(imageURLs)+1)
	if text != "" {
		parts = append(parts, TextPart{Type: "text", Text: text})
	}
	for _, u := range imageURLs {
		parts = append(parts, ImagePart{Type: "image_url", ImageURL: ImageURL{URL: u}})
	}
	return ChatMessage{Role: role, Content: parts}
}

// =============================================================================
// REQUEST / RESPONSE
// =============================================================================

// Request describes one chat-completion call.
type Request struct {
	// Model is the target model id. A ":thinking" suffix is normalized
	// away before sending; reasoning travels as an explicit flag instead.
	Model string

	// History is the full ordered message list, excluding the system
	// prompt, which travels separately in SystemPrompt.
	History []ChatMessage

	// SystemPrompt is the finalized instruction text.
	SystemPrompt string

	// Stream requests an SSE response for incremental decoding.
	Stream bool

	// EnableReasoning widens the token budget and requests thinking text.
	EnableReasoning bool

	// APIKey overrides the client credential when non-blank.
	APIKey string

	// HasImages marks that the history carries image parts, triggering the
	// best-effort model capability check.
	HasImages bool
}

// Response is the result of Send. Exactly one of Stream or Content is
// populated: a streaming response hands the raw body to the decoder, a
// materialized one carries the parsed text.
type Response struct {
	// Stream is the raw SSE body. The caller owns closing it.
	Stream ReadCloser

	Content   string
	Reasoning string
}

// ReadCloser mirrors io.ReadCloser without forcing the import on callers.
type ReadCloser interface {
	Read(p []byte) (int, error)
	Close() error
}

// IsStream reports whether the response must be fed to the SSE decoder.
func (r *Response) IsStream() bool {
	return r.Stream != nil
}

// =============================================================================
// WIRE SHAPES
// =============================================================================

// wireRequest is the JSON body sent upstream.
type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Reasoning   *wireReasoning `json:"reasoning,omitempty"`
}

// wireReasoning is the nested reasoning budget.
type wireReasoning struct {
	MaxTokens int `json:"max_tokens"`
}

// wireResponse is the materialized (non-streaming) response shape,
// validated at the trust boundary.
type wireResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
		} `json:"message"`
	} `json:"choices"`
	Usage json.RawMessage `json:"usage"`
}

// modelsResponse is the model-listing shape used for capability checks.
type modelsResponse struct {
	Data []struct {
		ID           string `json:"id"`
		Architecture struct {
			InputModalities []string `json:"input_modalities"`
		} `json:"architecture"`
	} `json:"data"`
}
