// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"
	"testing"
)

func TestDetectColorsConventions(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("FORCE_COLOR", "1")
	if !detectColors() {
		t.Error("FORCE_COLOR not honored")
	}

	t.Setenv("NO_COLOR", "1")
	if detectColors() {
		t.Error("NO_COLOR must win over FORCE_COLOR")
	}
}

func TestTerminalWidthBounds(t *testing.T) {
	w := TerminalWidth()
	if w < MinTerminalWidth {
		t.Errorf("width = %d, below the minimum %d", w, MinTerminalWidth)
	}
}

func TestDividerFitsTerminal(t *testing.T) {
	d := divider()
	if n := strings.Count(d, "─"); n == 0 || n > 60 {
		t.Errorf("divider has %d rule characters", n)
	}
}
