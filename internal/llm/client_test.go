// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func materializedBody(content, reasoning string) string {
	return `{"choices":[{"message":{"content":"` + content + `","reasoning":"` + reasoning + `"}}],"usage":{}}`
}

// captureServer records the last request body and replies with a fixed
// materialized response.
func captureServer(t *testing.T, captured *wireRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("reading request body: %v", err)
		}
		*captured = wireRequest{}
		if err := json.Unmarshal(raw, captured); err != nil {
			t.Errorf("unmarshalling request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, materializedBody("hej", ""))
	}))
}

func TestReasoningBudgetInvariant(t *testing.T) {
	var captured wireRequest
	srv := captureServer(t, &captured)
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")

	// Reasoning enabled widens the budget and attaches the nested one.
	_, err := client.Send(context.Background(), &Request{
		Model:           "some/model",
		History:         []ChatMessage{NewTextMessage(RoleUser, "hej")},
		EnableReasoning: true,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if captured.MaxTokens != 4096 {
		t.Errorf("max_tokens = %d, want 4096", captured.MaxTokens)
	}
	if captured.Reasoning == nil || captured.Reasoning.MaxTokens != 2000 {
		t.Errorf("reasoning budget = %+v, want max_tokens 2000", captured.Reasoning)
	}

	// Reasoning disabled keeps the base budget with no reasoning field.
	_, err = client.Send(context.Background(), &Request{
		Model:   "some/model",
		History: []ChatMessage{NewTextMessage(RoleUser, "hej")},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if captured.MaxTokens != 2048 {
		t.Errorf("max_tokens = %d, want 2048", captured.MaxTokens)
	}
	if captured.Reasoning != nil {
		t.Errorf("reasoning field present without reasoning enabled: %+v", captured.Reasoning)
	}
}

func TestTemperatureFixed(t *testing.T) {
	var captured wireRequest
	srv := captureServer(t, &captured)
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	if _, err := client.Send(context.Background(), &Request{
		Model:   "some/model",
		History: []ChatMessage{NewTextMessage(RoleUser, "hej")},
	}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if captured.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", captured.Temperature)
	}
}

func TestThinkingSuffixNormalized(t *testing.T) {
	var captured wireRequest
	srv := captureServer(t, &captured)
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	if _, err := client.Send(context.Background(), &Request{
		Model:   "vendor/model:thinking",
		History: []ChatMessage{NewTextMessage(RoleUser, "hej")},
	}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if captured.Model != "vendor/model" {
		t.Errorf("model sent upstream = %q, want %q", captured.Model, "vendor/model")
	}
}

func TestSystemPromptPrepended(t *testing.T) {
	var captured wireRequest
	srv := captureServer(t, &captured)
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	if _, err := client.Send(context.Background(), &Request{
		Model:        "some/model",
		SystemPrompt: "You are a helper.",
		History:      []ChatMessage{NewTextMessage(RoleUser, "hej")},
	}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(captured.Messages))
	}
	if captured.Messages[0].Role != RoleSystem {
		t.Errorf("first message role = %q, want system", captured.Messages[0].Role)
	}
}

func TestNotConfigured(t *testing.T) {
	client := NewClient("http://localhost:0", "")
	_, err := client.Send(context.Background(), &Request{Model: "m"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestPerRequestKeyWins(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, materializedBody("ok", ""))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "fallback-key")
	if _, err := client.Send(context.Background(), &Request{
		Model:   "m",
		History: []ChatMessage{NewTextMessage(RoleUser, "hej")},
		APIKey:  "user-key",
	}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gotAuth != "Bearer user-key" {
		t.Errorf("Authorization = %q, want the per-request key", gotAuth)
	}
}

func TestUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"boom"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	_, err := client.Send(context.Background(), &Request{
		Model:   "m",
		History: []ChatMessage{NewTextMessage(RoleUser, "hej")},
	})

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("err = %v, want *UpstreamError", err)
	}
	if upstream.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", upstream.Status)
	}
	if upstream.Body != `{"error":"boom"}` {
		t.Errorf("body = %q", upstream.Body)
	}
}

func TestStreamingResponseReturnsRawStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	resp, err := client.Send(context.Background(), &Request{
		Model:   "m",
		History: []ChatMessage{NewTextMessage(RoleUser, "hej")},
		Stream:  true,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !resp.IsStream() {
		t.Fatal("expected a stream response")
	}
	defer resp.Stream.Close()
	raw, _ := io.ReadAll(resp.Stream)
	if string(raw) != "data: [DONE]\n\n" {
		t.Errorf("stream body = %q", raw)
	}
}

func TestMaterializedResponseParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, materializedBody("Hej där!", "tänker..."))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	resp, err := client.Send(context.Background(), &Request{
		Model:   "m",
		History: []ChatMessage{NewTextMessage(RoleUser, "hej")},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resp.IsStream() {
		t.Fatal("expected a materialized response")
	}
	if resp.Content != "Hej där!" || resp.Reasoning != "tänker..." {
		t.Errorf("parsed = %q / %q", resp.Content, resp.Reasoning)
	}
}

func TestMalformedMaterializedResponse(t *testing.T) {
	for _, body := range []string{"not json at all", `{"choices":[]}`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, body)
		}))

		client := NewClient(srv.URL, "test-key")
		_, err := client.Send(context.Background(), &Request{
			Model:   "m",
			History: []ChatMessage{NewTextMessage(RoleUser, "hej")},
		})
		srv.Close()

		var upstream *UpstreamError
		if !errors.As(err, &upstream) {
			t.Errorf("body %q: err = %v, want *UpstreamError", body, err)
		}
	}
}

func TestCapabilityCheck(t *testing.T) {
	listing := `{"data":[
		{"id":"text-only","architecture":{"input_modalities":["text"]}},
		{"id":"vision","architecture":{"input_modalities":["text","image"]}}
	]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, listing)
		default:
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, materializedBody("ok", ""))
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	imageReq := func(model string) *Request {
		return &Request{
			Model:     model,
			History:   []ChatMessage{NewMultipartMessage(RoleUser, "look", []string{"https://x/y.png"})},
			HasImages: true,
		}
	}

	// Conclusive "no image support" fails fast.
	_, err := client.Send(context.Background(), imageReq("text-only"))
	var capErr *ModelCapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want *ModelCapabilityError", err)
	}

	// Image-capable model passes.
	if _, err := client.Send(context.Background(), imageReq("vision")); err != nil {
		t.Errorf("vision model failed: %v", err)
	}

	// Unknown model is inconclusive; the request must not be blocked.
	if _, err := client.Send(context.Background(), imageReq("unknown/model")); err != nil {
		t.Errorf("inconclusive capability check blocked the request: %v", err)
	}
}
