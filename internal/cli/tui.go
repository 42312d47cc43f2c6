// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/carechat/internal/chat"
	uichat "github.com/jeranaias/carechat/internal/ui/chat"
	ui "github.com/jeranaias/carechat/internal/ui/styles"
)

// cmdTUI runs the full-screen chat. It needs a terminal on both ends.
func cmdTUI(ctx context.Context, a *app, args []string) error {
	if !isTerminal(a.io.In) || !isTerminal(a.io.Out) {
		return &UsageError{Reason: "tui needs an interactive terminal; use 'carechat chat' for pipes"}
	}
	p := NewArgParser(args, "no-watch")

	mgr, err := a.registration(ctx)
	if err != nil {
		return err
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	session := chat.NewSession(a.gw, a.cache, a.logger)
	defer session.Close()

	if a.watchable() && !p.BoolFlag("no-watch") {
		go a.watchIdentity(ctx, session)
	}

	m := uichat.New(ctx, uichat.Config{
		Session:   session,
		Identity:  a.cache,
		Topics:    a.topics(),
		Registrar: mgr,
		ServerURL: a.gw.BaseURL(),
		Theme:     ui.NewThemeFor(a.io.Out),
	})
	defer m.Close()

	program := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(a.io.In),
		tea.WithOutput(a.io.Out),
	)
	_, err = program.Run()
	return err
}
