// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	core "github.com/jeranaias/carechat/internal/chat"
	"github.com/jeranaias/carechat/internal/registration"
	"github.com/jeranaias/carechat/internal/util"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles one Bubble Tea message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case core.EventMsg:
		wasSending := m.state == core.StateSending
		m.applyEvent(msg.Event)
		m.refresh()
		cmds = append(cmds, core.WaitForEvent(m.events))
		if m.state == core.StateSending && !wasSending {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		if m.state != core.StateSending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case topicsMsg:
		m.statusMsg = ""
		if msg.err != nil {
			m.addNote("Could not load topics: "+msg.err.Error(), true)
		} else {
			m.addNote(formatTopics(msg), false)
		}
		m.refresh()
		return m, nil

	case registeredMsg:
		m.statusMsg = ""
		if msg.err != nil {
			m.addNote(msg.err.Error(), true)
			m.refresh()
			return m, nil
		}
		m.addNote("Registered as "+util.MaskEmail(msg.id.Email)+".", false)
		m.refresh()
		// Unblock reports back through the event channel.
		m.cfg.Session.Unblock()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleKey routes key presses. Everything not bound goes to the input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Quit):
		m.quitting = true
		m.cfg.Session.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Cancel):
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}
		if m.cfg.Session.Cancel() {
			m.statusMsg = "Cancelled"
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keyMap.PageUp):
		m.viewport.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keyMap.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	case key.Matches(msg, m.keyMap.Home):
		m.viewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keyMap.End):
		m.viewport.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keyMap.Submit):
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the input line or runs it as a local command.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()
	m.statusMsg = ""

	if strings.HasPrefix(text, "/") {
		return m.runCommand(text)
	}

	if err := m.cfg.Session.Send(m.ctx, text); err != nil {
		m.statusMsg = refusal(err)
	}
	return m, nil
}

// runCommand handles a slash command typed into the input.
func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])

	switch cmd {
	case "/quit", "/exit", "/q":
		m.quitting = true
		m.cfg.Session.Close()
		return m, tea.Quit

	case "/help", "/?":
		m.showHelp = !m.showHelp

	case "/cancel":
		if m.cfg.Session.Cancel() {
			m.statusMsg = "Cancelled"
		} else {
			m.statusMsg = "Nothing to cancel"
		}

	case "/topics":
		if m.cfg.Topics == nil {
			m.statusMsg = "Topics are not available"
			return m, nil
		}
		m.statusMsg = "Loading topics..."
		return m, fetchTopicsCmd(m.ctx, m.cfg.Topics)

	case "/usage":
		if m.hasUsage {
			m.addNote(m.usage.Describe(), false)
		} else {
			m.addNote("No usage reported yet.", false)
		}
		m.refresh()

	case "/register":
		profile, err := parseProfile(fields[1:])
		if err != nil {
			m.statusMsg = err.Error()
			return m, nil
		}
		if m.cfg.Registrar == nil {
			m.statusMsg = "Registration is not available"
			return m, nil
		}
		m.statusMsg = "Registering..."
		return m, registerCmd(m.ctx, m.cfg.Registrar, profile)

	case "/whoami":
		if id, ok := m.cfg.Identity.Current(); ok {
			m.addNote(util.MaskEmail(id.Email), false)
		} else {
			m.addNote("Not registered.", false)
		}
		m.refresh()

	case "/clear":
		m.entries = nil
		m.refresh()

	default:
		m.statusMsg = fmt.Sprintf("Unknown command %s. Type /help for commands.", cmd)
	}
	return m, nil
}

// applyEvent folds one session event into the view.
func (m *Model) applyEvent(ev core.Event) {
	switch ev := ev.(type) {
	case core.EventAppended:
		msg := ev.Message
		m.entries = append(m.entries, entry{message: &msg})
	case core.EventStateChanged:
		m.state = ev.To
		if ev.To == core.StateBlocked {
			m.statusMsg = "Limit reached. /register or upgrade to continue."
		} else if ev.Unblocked() {
			m.statusMsg = ""
			m.addNote(core.UnblockedNotice, false)
		}
	case core.EventUsage:
		m.usage, m.hasUsage = ev.Usage, true
	case core.EventDropped:
		m.addNote(fmt.Sprintf("Not sent: %q (%v)", util.TruncateRunes(ev.Text, 60), ev.Reason), false)
	}
}

// refusal explains why Send refused a message.
func refusal(err error) string {
	switch {
	case errors.Is(err, core.ErrBlocked):
		return "Limit reached. /register or upgrade to continue."
	case errors.Is(err, core.ErrNotRegistered):
		return "Not registered. Use /register EMAIL AGE [SEX]."
	default:
		return "Not sent: " + err.Error()
	}
}

// parseProfile reads "EMAIL AGE [SEX]".
func parseProfile(args []string) (registration.Profile, error) {
	if len(args) < 2 {
		return registration.Profile{}, errors.New("usage: /register EMAIL AGE [SEX]")
	}
	age, err := strconv.Atoi(args[1])
	if err != nil {
		return registration.Profile{}, errors.New("age must be a non-negative integer")
	}
	p := registration.Profile{Email: args[0], Age: age}
	if len(args) > 2 {
		p.Sex = strings.Join(args[2:], " ")
	}
	if err := registration.Validate(p); err != nil {
		return registration.Profile{}, err
	}
	return p, nil
}
