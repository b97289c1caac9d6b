// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse decodes server-sent-event completion streams.
package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// =============================================================================
// EVENTS
// =============================================================================

// EventType classifies a decoded stream event.
type EventType string

const (
	// EventContent carries a content text delta.
	EventContent EventType = "content"

	// EventReasoning carries a reasoning ("thinking") text delta.
	EventReasoning EventType = "reasoning"

	// EventDone is terminal and carries no content.
	EventDone EventType = "done"
)

// Event is a single typed event decoded from the stream.
type Event struct {
	Type    EventType
	Content string
}

// UpdateFunc receives each content/reasoning delta synchronously, in
// arrival order, before the next block is processed.
type UpdateFunc func(Event)

// Completion is handed to the completion callback exactly once, either on
// the done event or on stream end.
type Completion struct {
	Content   string
	Reasoning string

	// SawDone is false when the underlying stream ended without a done
	// event. That is a normal completion, not a failure.
	SawDone bool
}

// CompleteFunc receives the accumulated result exactly once.
type CompleteFunc func(Completion)

// =============================================================================
// DECODE ERRORS
// =============================================================================

// DecodeError records a single malformed payload line. It is kept, not
// returned: one bad line never aborts the rest of the stream.
type DecodeError struct {
	Line string
	Err  error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("sse: skipped malformed line %q: %v", e.Line, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// =============================================================================
// WIRE SHAPE
// =============================================================================

// dataPrefix is the fixed literal prefix of payload-carrying lines.
const dataPrefix = "data: "

// doneMarker is the terminal payload.
const doneMarker = "[DONE]"

// chunk is the OpenAI-compatible streaming delta shape, validated at the
// trust boundary; anything that fails to parse into it is skipped.
type chunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// =============================================================================
// DECODER
// =============================================================================

// readSize is the per-call read buffer size.
const readSize = 4096

// Decoder incrementally parses one SSE response body. A decoder is bound to
// a single response and is not restartable; create a fresh one per stream.
type Decoder struct {
	r io.Reader

	// pending holds the potentially-incomplete tail block across reads.
	// Blocks are delimited by a blank line (two consecutive newlines), and
	// only complete blocks are parsed.
	pending []byte

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	content   strings.Builder
	reasoning strings.Builder

	errs []error
	done bool
}

// NewDecoder creates a decoder for one response body.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Errors returns the recorded per-line decode errors.
func (d *Decoder) Errors() []error {
	return d.errs
}

// Run consumes the stream until a done event, stream end, context
// cancellation, or a read error. onUpdate is invoked synchronously for
// every delta in arrival order; onComplete is invoked exactly once on done
// or on stream end. A read error or cancellation returns without invoking
// onComplete.
func (d *Decoder) Run(ctx context.Context, onUpdate UpdateFunc, onComplete CompleteFunc) error {
	buf := make([]byte, readSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := d.r.Read(buf)
		if n > 0 {
			d.pending = append(d.pending, buf[:n]...)
			d.processComplete(onUpdate)
			if d.done {
				d.complete(onUpdate, onComplete, true)
				return nil
			}
		}
		if err != nil {
			if err == io.EOF {
				// Socket closed without a done event: flush whatever the
				// tail holds and report a normal completion.
				d.processBlock(d.pending, onUpdate)
				d.pending = nil
				d.complete(onUpdate, onComplete, d.done)
				return nil
			}
			return err
		}
	}
}

// processComplete parses every complete block currently buffered, holding
// back the incomplete tail.
func (d *Decoder) processComplete(onUpdate UpdateFunc) {
	for !d.done {
		idx := blockEnd(d.pending)
		if idx < 0 {
			return
		}
		block := d.pending[:idx]
		d.pending = d.pending[idx:]
		// Consume the delimiting blank line.
		for len(d.pending) > 0 && (d.pending[0] == '\n' || d.pending[0] == '\r') {
			d.pending = d.pending[1:]
		}
		d.processBlock(block, onUpdate)
	}
}

// blockEnd returns the index at which the first complete block ends, or -1
// if the buffer holds no blank-line delimiter yet.
func blockEnd(buf []byte) int {
	if i := bytes.Index(buf, []byte("\n\n")); i >= 0 {
		return i
	}
	if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
		return i
	}
	return -1
}

// processBlock decodes the payload lines of one block.
func (d *Decoder) processBlock(block []byte, onUpdate UpdateFunc) {
	for _, rawLine := range bytes.Split(block, []byte("\n")) {
		if d.done {
			return
		}
		line := strings.TrimRight(string(rawLine), "\r")
		if !strings.HasPrefix(line, dataPrefix) {
			// Comments, event: and id: fields carry no payload here.
			continue
		}
		payload := strings.TrimSpace(line[len(dataPrefix):])
		if payload == "" {
			continue
		}
		if payload == doneMarker {
			// Decoding stops immediately, even if more bytes remain.
			d.done = true
			return
		}

		var c chunk
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			d.errs = append(d.errs, &DecodeError{Line: payload, Err: err})
			continue
		}
		if len(c.Choices) == 0 {
			d.errs = append(d.errs, &DecodeError{Line: payload, Err: fmt.Errorf("no choices in chunk")})
			continue
		}

		delta := c.Choices[0].Delta
		if delta.Content != "" {
			d.content.WriteString(delta.Content)
			onUpdate(Event{Type: EventContent, Content: delta.Content})
		}
		if delta.Reasoning != "" {
			d.reasoning.WriteString(delta.Reasoning)
			onUpdate(Event{Type: EventReasoning, Content: delta.Reasoning})
		}
		if c.Choices[0].FinishReason != "" {
			d.done = true
			return
		}
	}
}

// complete emits the terminal done event and invokes the completion
// callback exactly once.
func (d *Decoder) complete(onUpdate UpdateFunc, onComplete CompleteFunc, sawDone bool) {
	onUpdate(Event{Type: EventDone})
	if onComplete != nil {
		onComplete(Completion{
			Content:   d.content.String(),
			Reasoning: d.reasoning.String(),
			SawDone:   sawDone,
		})
	}
}
