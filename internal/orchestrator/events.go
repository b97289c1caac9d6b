// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import "github.com/lingomate/lingomate/internal/model"

// =============================================================================
// EVENTS
// =============================================================================

// EventKind classifies an orchestrator event.
type EventKind string

const (
	// EventMessagesUpdated carries a fresh message-list snapshot. Emitted
	// on every append, delta, and reconciliation. Coalescable: a consumer
	// that misses one only misses an intermediate render state.
	EventMessagesUpdated EventKind = "messages-updated"

	// EventTurnSettled marks the end of a turn, whether by completion,
	// cancellation, or error.
	EventTurnSettled EventKind = "turn-settled"

	// EventConversationUpdated signals that a conversation's stored state
	// changed in a way sidebars and the title heuristic care about.
	EventConversationUpdated EventKind = "conversation-updated"

	// EventError carries the single user-facing notification of a failed
	// turn.
	EventError EventKind = "error"
)

// Event is one typed notification from the orchestrator. The presentation
// layer subscribes via Events and maps these to its own render state.
type Event struct {
	Kind           EventKind
	ConversationID string

	// Messages is a snapshot, safe to read from any goroutine. Set on
	// EventMessagesUpdated and EventTurnSettled.
	Messages []*model.Message

	// Err is set on EventError.
	Err error
}

// eventBuffer bounds the subscription channel. Snapshot events are dropped
// when the consumer lags; terminal events never are.
const eventBuffer = 256

// Events returns the subscription channel. It is closed by Close.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// emit delivers an event, dropping coalescable snapshots when the buffer
// is full so a slow consumer cannot stall a stream.
func (o *Orchestrator) emit(ev Event) {
	if ev.Kind == EventMessagesUpdated {
		select {
		case o.events <- ev:
		default:
		}
		return
	}
	o.events <- ev
}

// emitSnapshot publishes the current message list. Callers must hold o.mu.
func (o *Orchestrator) emitSnapshotLocked() {
	if o.conv == nil {
		return
	}
	o.emit(Event{
		Kind:           EventMessagesUpdated,
		ConversationID: o.conv.ID,
		Messages:       o.conv.Snapshot(),
	})
}
