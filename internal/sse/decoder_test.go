// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// chunkedReader feeds its payload in fixed-size pieces so tests can split
// the stream at arbitrary byte offsets.
type chunkedReader struct {
	data []byte
	pos  int
	size int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	end := r.pos + r.size
	if end > len(r.data) {
		end = len(r.data)
	}
	n := copy(p, r.data[r.pos:end])
	r.pos += n
	return n, nil
}

func contentChunk(s string) string {
	return `data: {"choices":[{"delta":{"content":"` + s + `"}}]}` + "\n\n"
}

func reasoningChunk(s string) string {
	return `data: {"choices":[{"delta":{"reasoning":"` + s + `"}}]}` + "\n\n"
}

const doneChunk = "data: [DONE]\n\n"

func runDecoder(t *testing.T, r io.Reader) (Completion, []Event, *Decoder) {
	t.Helper()
	var events []Event
	var result Completion
	completed := 0

	dec := NewDecoder(r)
	err := dec.Run(context.Background(),
		func(ev Event) { events = append(events, ev) },
		func(c Completion) {
			result = c
			completed++
		})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if completed != 1 {
		t.Fatalf("completion callback invoked %d times, want 1", completed)
	}
	return result, events, dec
}

func TestDecodeSimpleStream(t *testing.T) {
	payload := contentChunk("Hej") + contentChunk(" där") + doneChunk

	result, events, _ := runDecoder(t, strings.NewReader(payload))

	if result.Content != "Hej där" {
		t.Errorf("content = %q, want %q", result.Content, "Hej där")
	}
	if !result.SawDone {
		t.Error("SawDone = false, want true")
	}
	want := []EventType{EventContent, EventContent, EventDone}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, typ := range want {
		if events[i].Type != typ {
			t.Errorf("event %d type = %s, want %s", i, events[i].Type, typ)
		}
	}
}

func TestDecodeChunkBoundaryInvariance(t *testing.T) {
	payload := contentChunk("Hej") + reasoningChunk("thinking...") +
		contentChunk(" där, hur mår du? åäö") + doneChunk

	reference, refEvents, _ := runDecoder(t, strings.NewReader(payload))

	for size := 1; size <= len(payload); size++ {
		result, events, _ := runDecoder(t, &chunkedReader{data: []byte(payload), size: size})

		if result.Content != reference.Content {
			t.Fatalf("chunk size %d: content = %q, want %q", size, result.Content, reference.Content)
		}
		if result.Reasoning != reference.Reasoning {
			t.Fatalf("chunk size %d: reasoning = %q, want %q", size, result.Reasoning, reference.Reasoning)
		}
		if len(events) != len(refEvents) {
			t.Fatalf("chunk size %d: %d events, want %d", size, len(events), len(refEvents))
		}
		for i := range events {
			if events[i].Type != refEvents[i].Type {
				t.Fatalf("chunk size %d: event %d type = %s, want %s",
					size, i, events[i].Type, refEvents[i].Type)
			}
		}
	}
}

func TestDecodeMalformedLineTolerance(t *testing.T) {
	clean := contentChunk("Hej") + contentChunk(" där") + doneChunk
	dirty := contentChunk("Hej") + "data: {not valid json]\n\n" + contentChunk(" där") + doneChunk

	cleanResult, _, _ := runDecoder(t, strings.NewReader(clean))
	dirtyResult, _, dec := runDecoder(t, strings.NewReader(dirty))

	if dirtyResult.Content != cleanResult.Content {
		t.Errorf("content with bad line = %q, want %q", dirtyResult.Content, cleanResult.Content)
	}
	if len(dec.Errors()) != 1 {
		t.Errorf("recorded %d decode errors, want 1", len(dec.Errors()))
	}
	var decodeErr *DecodeError
	if len(dec.Errors()) > 0 && !errors.As(dec.Errors()[0], &decodeErr) {
		t.Errorf("recorded error is %T, want *DecodeError", dec.Errors()[0])
	}
}

func TestDecodeEOFWithoutDone(t *testing.T) {
	payload := contentChunk("Hej") + contentChunk(" där")

	result, events, _ := runDecoder(t, strings.NewReader(payload))

	if result.Content != "Hej där" {
		t.Errorf("content = %q, want %q", result.Content, "Hej där")
	}
	if result.SawDone {
		t.Error("SawDone = true for a stream that never sent done")
	}
	if events[len(events)-1].Type != EventDone {
		t.Error("stream end did not emit a terminal done event")
	}
}

func TestDecodeStopsAtDone(t *testing.T) {
	payload := contentChunk("before") + doneChunk + contentChunk("after")

	result, _, _ := runDecoder(t, strings.NewReader(payload))

	if result.Content != "before" {
		t.Errorf("content = %q; bytes after done must be ignored", result.Content)
	}
}

func TestDecodeFinishReasonTerminates(t *testing.T) {
	payload := `data: {"choices":[{"delta":{"content":"klart"},"finish_reason":"stop"}]}` + "\n\n" +
		contentChunk("ignored")

	result, _, _ := runDecoder(t, strings.NewReader(payload))

	if result.Content != "klart" {
		t.Errorf("content = %q, want %q", result.Content, "klart")
	}
	if !result.SawDone {
		t.Error("finish_reason did not mark the stream done")
	}
}

func TestDecodeIgnoresNonDataLines(t *testing.T) {
	payload := ": keep-alive comment\n\n" +
		"event: message\n" + contentChunk("Hej") + doneChunk

	result, _, dec := runDecoder(t, strings.NewReader(payload))

	if result.Content != "Hej" {
		t.Errorf("content = %q, want %q", result.Content, "Hej")
	}
	if len(dec.Errors()) != 0 {
		t.Errorf("non-data lines recorded errors: %v", dec.Errors())
	}
}

func TestDecodeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dec := NewDecoder(strings.NewReader(contentChunk("Hej") + doneChunk))
	err := dec.Run(ctx, func(Event) {}, func(Completion) {
		t.Error("completion callback invoked on cancellation")
	})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
