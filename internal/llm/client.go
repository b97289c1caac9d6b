// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// Temperature is fixed for all completion requests.
	Temperature = 0.7

	// BaseMaxTokens is the response token budget without reasoning.
	BaseMaxTokens = 2048

	// ReasoningMaxTokens is the widened budget when reasoning is enabled.
	ReasoningMaxTokens = 4096

	// ReasoningBudget is the nested reasoning-token budget attached when
	// reasoning is enabled. These three values are a hard contract, not
	// tunable defaults.
	ReasoningBudget = 2000

	// ThinkingSuffix marks "thinking variant" model ids. The suffix is
	// stripped before sending; the reasoning toggle is an explicit flag.
	ThinkingSuffix = ":thinking"

	// MaxResponseSize bounds materialized response bodies.
	MaxResponseSize = 10 * 1024 * 1024
)

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to one OpenAI-compatible chat-completions endpoint.
//
// The client performs no automatic retry and sets no request timeout;
// cancellation arrives solely through the caller's context.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	// capabilities caches the image-support verdict per model id.
	// The bool is only meaningful when the model id is present.
	mu           sync.Mutex
	capabilities map[string]bool
}

// NewClient creates a client for the given base URL. apiKey is the
// environment-sourced fallback credential; a per-request key wins when
// non-blank.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			// No timeout: streaming responses stay open indefinitely and
			// cancellation is context-driven.
		},
		capabilities: make(map[string]bool),
	}
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// IsConfigured returns true if a fallback credential is present.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// APIKeyMasked returns a displayable fingerprint of the credential.
// The key itself is never logged or shown.
func (c *Client) APIKeyMasked() string {
	if c.apiKey == "" {
		return "[not set]"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return fmt.Sprintf("[set, fingerprint=%s]", hex.EncodeToString(h[:4]))
}

// =============================================================================
// MODEL NORMALIZATION
// =============================================================================

// NormalizeModel strips the thinking-variant suffix from a model id.
func NormalizeModel(model string) string {
	return strings.TrimSuffix(model, ThinkingSuffix)
}

// =============================================================================
// SEND
// =============================================================================

// Send issues one chat-completion request. It returns either a live SSE
// stream for the decoder or a materialized response, depending on the
// upstream content type.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		key = c.apiKey
	}
	if key == "" {
		return nil, ErrNotConfigured
	}

	if req.HasImages {
		if err := c.checkImageSupport(ctx, NormalizeModel(req.Model)); err != nil {
			return nil, err
		}
	}

	body := buildWireRequest(req)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Cache-Control", "no-cache")
	}

	log.Printf("completion request: model=%s stream=%v reasoning=%v messages=%d",
		body.Model, req.Stream, req.EnableReasoning, len(body.Messages))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		log.Printf("completion response: %d (%v)", resp.StatusCode, time.Since(start))
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(raw)}
	}
	log.Printf("completion response: %d (%v)", resp.StatusCode, time.Since(start))

	if isEventStream(resp.Header.Get("Content-Type")) {
		return &Response{Stream: resp.Body}, nil
	}

	defer resp.Body.Close()
	return parseMaterialized(resp.Body)
}

// buildWireRequest assembles the JSON body, applying the token budget
// contract and model normalization.
func buildWireRequest(req *Request) *wireRequest {
	messages := make([]ChatMessage, 0, len(req.History)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, NewTextMessage(RoleSystem, req.SystemPrompt))
	}
	messages = append(messages, req.History...)

	body := &wireRequest{
		Model:       NormalizeModel(req.Model),
		Messages:    messages,
		Stream:      req.Stream,
		Temperature: Temperature,
		MaxTokens:   BaseMaxTokens,
	}
	if req.EnableReasoning {
		body.MaxTokens = ReasoningMaxTokens
		body.Reasoning = &wireReasoning{MaxTokens: ReasoningBudget}
	}
	return body
}

// isEventStream reports whether the upstream declared an SSE body.
func isEventStream(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "text/event-stream")
}

// parseMaterialized validates a non-streaming response at the trust
// boundary. Anything failing validation is an UpstreamError, never a
// silently-accepted partial object.
func parseMaterialized(body io.Reader) (*Response, error) {
	raw, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &UpstreamError{Status: http.StatusOK, Body: "malformed response body: " + err.Error()}
	}
	if len(wire.Choices) == 0 {
		return nil, &UpstreamError{Status: http.StatusOK, Body: "response contained no choices"}
	}

	return &Response{
		Content:   wire.Choices[0].Message.Content,
		Reasoning: wire.Choices[0].Message.Reasoning,
	}, nil
}

// =============================================================================
// CAPABILITY CHECK
// =============================================================================

// checkImageSupport verifies, best effort, that the model advertises image
// input. A failed or inconclusive check never blocks the request; only a
// conclusive "no image support" verdict fails fast.
func (c *Client) checkImageSupport(ctx context.Context, model string) error {
	c.mu.Lock()
	supported, known := c.capabilities[model]
	c.mu.Unlock()

	if !known {
		verdict, conclusive := c.fetchImageSupport(ctx, model)
		if !conclusive {
			return nil
		}
		c.mu.Lock()
		c.capabilities[model] = verdict
		c.mu.Unlock()
		supported = verdict
	}

	if !supported {
		return &ModelCapabilityError{Model: model}
	}
	return nil
}

// fetchImageSupport queries the model listing. The second return value is
// false when the check was inconclusive (network error, unknown model, or
// no advertised modalities).
func (c *Client) fetchImageSupport(ctx context.Context, model string) (bool, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return false, false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("capability check skipped: %v", err)
		return false, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, false
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return false, false
	}
	var listing modelsResponse
	if err := json.Unmarshal(raw, &listing); err != nil {
		return false, false
	}

	for _, m := range listing.Data {
		if m.ID != model {
			continue
		}
		if len(m.Architecture.InputModalities) == 0 {
			return false, false
		}
		for _, mod := range m.Architecture.InputModalities {
			if mod == "image" {
				return true, true
			}
		}
		return false, true
	}
	return false, false
}
