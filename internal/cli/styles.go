// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/carechat/internal/model"
	ui "github.com/jeranaias/carechat/internal/ui/styles"
)

// styles holds the renderers for one output stream. With an Ascii profile
// every style renders plain text.
type styles struct {
	prompt  lipgloss.Style
	user    lipgloss.Style
	bot     lipgloss.Style
	system  lipgloss.Style
	errText lipgloss.Style
	warn    lipgloss.Style
	ok      lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(w io.Writer, profile termenv.Profile) *styles {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(profile)

	return &styles{
		prompt:  r.NewStyle().Foreground(ui.Cyan).Bold(true),
		user:    r.NewStyle().Foreground(ui.Cyan).Bold(true),
		bot:     r.NewStyle().Foreground(ui.Purple).Bold(true),
		system:  r.NewStyle().Foreground(ui.Amber).Bold(true),
		errText: r.NewStyle().Foreground(ui.Rose).Bold(true),
		warn:    r.NewStyle().Foreground(ui.Amber),
		ok:      r.NewStyle().Foreground(ui.Emerald),
		muted:   r.NewStyle().Foreground(ui.TextSecondary),
	}
}

// label renders the speaker prefix for a message.
func (s *styles) label(msg model.Message) string {
	switch {
	case msg.IsSystem():
		return s.system.Render("[" + msg.Sender.String() + "]")
	case msg.IsBot():
		return s.bot.Render(msg.Sender.DisplayName() + ":")
	default:
		return s.user.Render(msg.Sender.DisplayName() + ":")
	}
}
