// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"errors"
	"fmt"
)

// ErrNotConfigured indicates no API credential is available. It fails fast
// before any network call.
var ErrNotConfigured = errors.New("completion API key not configured")

// UpstreamError is a non-2xx response from the completion endpoint. The
// client performs no retry; the turn owner decides what happens next.
type UpstreamError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (HTTP %d): %s", e.Status, e.Body)
}

// ModelCapabilityError indicates attachments were present but the target
// model conclusively lacks image input support.
type ModelCapabilityError struct {
	Model string
}

// Error implements the error interface.
func (e *ModelCapabilityError) Error() string {
	return fmt.Sprintf("model %q does not support image input", e.Model)
}
