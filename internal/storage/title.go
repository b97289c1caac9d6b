// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lingomate/lingomate/internal/model"
	"github.com/lingomate/lingomate/internal/util"
)

// Auto-generated titles come from the first user message, capped at this
// display width.
const titleWidth = 48

// Regeneration is throttled per conversation so a burst of settled turns
// doesn't rewrite the title row on every one.
const titleRegenInterval = 10 * time.Second

// Titler derives conversation titles from their content. It never touches
// the network; titles are a local heuristic.
type Titler struct {
	store *Store

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewTitler creates a Titler over the given store.
func NewTitler(store *Store) *Titler {
	return &Titler{
		store:    store,
		limiters: make(map[string]*rate.Limiter),
	}
}

// MaybeRefresh regenerates the title for a conversation when it is still
// auto-generated and the conversation has at least two user turns. Returns
// the new title and whether it changed.
func (t *Titler) MaybeRefresh(conversationID string) (string, bool, error) {
	var auto int
	var current string
	err := t.store.db.QueryRow(
		`SELECT title, title_auto FROM conversations WHERE id = ?`,
		conversationID).Scan(&current, &auto)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, wrap("refresh title", ErrNotFound)
	}
	if err != nil {
		return "", false, wrap("refresh title", err)
	}
	if auto == 0 {
		// Renamed by the user; hands off.
		return current, false, nil
	}

	msgs, err := t.store.GetMessages(conversationID)
	if err != nil {
		return current, false, err
	}
	first, turns := firstUserAndCount(msgs)
	if turns < 2 || first == nil {
		return current, false, nil
	}

	if !t.allow(conversationID) {
		return current, false, nil
	}

	title := deriveTitle(first.Content)
	if title == "" || title == current {
		return current, false, nil
	}
	if _, err := t.store.db.Exec(
		`UPDATE conversations SET title = ? WHERE id = ?`, title, conversationID); err != nil {
		return current, false, wrap("refresh title", err)
	}
	return title, true, nil
}

// SetTitle renames a conversation explicitly and pins the title against
// future auto-regeneration.
func (t *Titler) SetTitle(conversationID, title string) error {
	res, err := t.store.db.Exec(
		`UPDATE conversations SET title = ?, title_auto = 0 WHERE id = ?`,
		title, conversationID)
	if err != nil {
		return wrap("set title", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wrap("set title", ErrNotFound)
	}
	return nil
}

func (t *Titler) allow(conversationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	lim, ok := t.limiters[conversationID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(titleRegenInterval), 1)
		t.limiters[conversationID] = lim
	}
	return lim.Allow()
}

func firstUserAndCount(msgs []*model.Message) (*model.Message, int) {
	var first *model.Message
	count := 0
	for _, m := range msgs {
		if m.Type != model.TypeUser {
			continue
		}
		if first == nil {
			first = m
		}
		count++
	}
	return first, count
}

func deriveTitle(content string) string {
	return util.TruncateWidth(util.CollapseNewlines(content), titleWidth)
}
