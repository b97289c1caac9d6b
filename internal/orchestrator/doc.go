// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator runs the multi-agent turns at the heart of the
// application.
//
// A turn is the set of AI calls triggered by one user action. The full
// dual-agent turn issues three calls against the completion endpoint:
//
//  1. Editor Mate comments on the user's message. The call sees the
//     entire prior conversation, flattened through the model's viewpoint,
//     and its pending message record carries the user message's id as its
//     parent.
//  2. Chat Mate replies, concurrently with 1, seeing only the
//     user/chat-mate subset of history. Chat Mate never sees Editor Mate
//     commentary.
//  3. Editor Mate comments on Chat Mate's reply, strictly after 2
//     resolves, with the reply's id as its parent.
//
// Each call streams deltas into its own pending message record and
// persists the record once its stream reaches the terminal event, at
// which point the temporary id is reconciled with the store-assigned one.
//
// Reduced turns (send as user only, send as chat-mate only) and
// regeneration reuse the same wiring. A single cancellation handle covers
// every call of a turn: cancelling removes records that never reached a
// terminal state and leaves persisted messages untouched.
//
// The presentation layer consumes typed events from Events; the
// orchestrator never reaches into render state directly.
package orchestrator
