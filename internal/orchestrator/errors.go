// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"errors"
)

// ErrTurnActive is returned when a new turn is started while another one is
// still running. Turns are strictly serialized.
var ErrTurnActive = errors.New("a turn is already in progress")

// ErrNoConversation is returned by operations that need an active
// conversation when none exists yet.
var ErrNoConversation = errors.New("no active conversation")

// ErrMessageNotFound is returned when a message id is not in the active
// conversation.
var ErrMessageNotFound = errors.New("message not found")

// CancelledError marks a turn aborted by the user. It is distinct from an
// upstream failure so callers can show "cancelled" rather than "failed".
type CancelledError struct{}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	return "turn cancelled"
}

// Is reports context.Canceled as a match so existing errors.Is checks on
// the context error keep working.
func (e *CancelledError) Is(target error) bool {
	return target == context.Canceled
}
