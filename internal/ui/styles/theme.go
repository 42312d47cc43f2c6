// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER STYLES
	// ==========================================================================

	Header         lipgloss.Style
	HeaderTitle    lipgloss.Style
	HeaderSubtitle lipgloss.Style

	// ==========================================================================
	// MESSAGE STYLES
	// ==========================================================================

	UserLabel   lipgloss.Style
	BotLabel    lipgloss.Style
	SystemLabel lipgloss.Style
	MessageBody lipgloss.Style
	SystemBody  lipgloss.Style
	Note        lipgloss.Style

	// ==========================================================================
	// INPUT AND STATUS STYLES
	// ==========================================================================

	InputPrompt  lipgloss.Style
	StatusBar    lipgloss.Style
	StatusIdle   lipgloss.Style
	StatusBusy   lipgloss.Style
	StatusBlock  lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style
	Error        lipgloss.Style
	Muted        lipgloss.Style
}

// NewTheme creates a theme for stdout.
func NewTheme() *Theme {
	return NewThemeFor(os.Stdout)
}

// NewThemeFor detects the color profile and background of w. Writers that
// are not terminals get the Ascii profile.
func NewThemeFor(w io.Writer) *Theme {
	output := termenv.NewOutput(w)
	colorProfile := output.EnvColorProfile()

	t := &Theme{
		IsDark:       output.HasDarkBackground(),
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}

	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(colorProfile)
	r.SetHasDarkBackground(t.IsDark)
	t.initStyles(r)
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles(r *lipgloss.Renderer) {
	t.Header = r.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = r.NewStyle().Bold(true).Foreground(Purple)
	t.HeaderSubtitle = r.NewStyle().Foreground(TextSecondary).Italic(true)

	t.UserLabel = r.NewStyle().Bold(true).Foreground(Cyan)
	t.BotLabel = r.NewStyle().Bold(true).Foreground(Purple)
	t.SystemLabel = r.NewStyle().Bold(true).Foreground(Amber)
	t.MessageBody = r.NewStyle().Foreground(TextPrimary).PaddingLeft(2)
	t.SystemBody = r.NewStyle().Foreground(Amber).PaddingLeft(2)
	t.Note = r.NewStyle().Foreground(TextMuted).Italic(true).PaddingLeft(2)

	t.InputPrompt = r.NewStyle().Bold(true).Foreground(Cyan)
	t.StatusBar = r.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)
	t.StatusIdle = r.NewStyle().Foreground(Emerald)
	t.StatusBusy = r.NewStyle().Foreground(Amber)
	t.StatusBlock = r.NewStyle().Bold(true).Foreground(Rose)
	t.ShortcutKey = r.NewStyle().Bold(true).Foreground(Cyan)
	t.ShortcutDesc = r.NewStyle().Foreground(TextMuted)
	t.Error = r.NewStyle().Bold(true).Foreground(Rose)
	t.Muted = r.NewStyle().Foreground(TextMuted)
}

// SetSize records the terminal dimensions.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}
