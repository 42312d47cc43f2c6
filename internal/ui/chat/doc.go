// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the full-screen chat view for carechat.

The view is a Bubble Tea model layered over a conversation session from
internal/chat. It never talks to the network itself: sends go through the
session, and the session's events come back as messages.

# Key Components

## Model (model.go)

Holds the rendered conversation, the last reported quota, the session state
and the bubbles components (textinput, viewport, spinner, help).

## Update Loop (update.go)

  - Enter submits the input; lines starting with "/" are local commands
  - Esc abandons the pending reply
  - Session events re-render the transcript and re-arm the event command
  - /topics and /register run as commands and report back as messages

## View Rendering (view.go)

Header with the server and masked email, the scrolling transcript, a status
bar with the session state and quota, and the input line.

# Usage

	m := chat.New(ctx, chat.Config{
	    Session:   session,
	    Identity:  cache,
	    Topics:    topicsClient,
	    Registrar: manager,
	    ServerURL: gw.BaseURL(),
	})
	defer m.Close()
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
*/
package chat
