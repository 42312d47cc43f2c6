// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// THEME CREATION TESTS
// =============================================================================

func TestNewThemeFor_NonTerminalIsAscii(t *testing.T) {
	var buf bytes.Buffer
	theme := NewThemeFor(&buf)

	if theme.ColorProfile != termenv.Ascii {
		t.Fatalf("ColorProfile = %v, want Ascii for a non-terminal writer", theme.ColorProfile)
	}
	if theme.HasTrueColor {
		t.Error("HasTrueColor should be false for a non-terminal writer")
	}
}

func TestThemeStylesRenderPlainTextWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	theme := NewThemeFor(&buf)

	styles := []struct {
		name  string
		style lipgloss.Style
	}{
		{"UserLabel", theme.UserLabel},
		{"BotLabel", theme.BotLabel},
		{"SystemLabel", theme.SystemLabel},
		{"InputPrompt", theme.InputPrompt},
		{"StatusBlock", theme.StatusBlock},
		{"Error", theme.Error},
	}

	for _, s := range styles {
		rendered := s.style.Render("test")
		if strings.Contains(rendered, "\x1b[") {
			t.Errorf("%s rendered escape codes on an Ascii profile: %q", s.name, rendered)
		}
		if !strings.Contains(rendered, "test") {
			t.Errorf("%s lost its content: %q", s.name, rendered)
		}
	}
}

func TestThemeSetSize(t *testing.T) {
	theme := NewThemeFor(&bytes.Buffer{})
	theme.SetSize(120, 40)

	if theme.Width != 120 || theme.Height != 40 {
		t.Errorf("SetSize(120, 40) = %dx%d", theme.Width, theme.Height)
	}
}

func TestRenderHelpersKeepMessage(t *testing.T) {
	for name, out := range map[string]string{
		"success": RenderSuccess("saved"),
		"error":   RenderError("saved"),
		"warning": RenderWarning("saved"),
	} {
		if !strings.Contains(out, "saved") {
			t.Errorf("%s helper dropped the message: %q", name, out)
		}
	}
}
