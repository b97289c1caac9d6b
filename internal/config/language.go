// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// NormalizeLanguage turns a BCP 47 tag like "sv" or "pt-BR" into the
// English display name the prompt templates expect ("Swedish",
// "Brazilian Portuguese"). Values that don't parse as tags are assumed to
// already be display names and pass through unchanged.
func NormalizeLanguage(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return v
	}

	// Display names contain spaces or uppercase letters past position 0;
	// tags are short and lowercase-ish ("sv", "pt-BR", "zh-Hans").
	if len(v) > 11 || strings.ContainsRune(v, ' ') {
		return v
	}

	tag, err := language.Parse(v)
	if err != nil {
		return v
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return v
	}
	return name
}
