// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	core "github.com/jeranaias/carechat/internal/chat"
	"github.com/jeranaias/carechat/internal/model"
	"github.com/jeranaias/carechat/internal/util"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the whole screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	body := m.viewport.View()
	if m.showHelp {
		body = m.renderHelp()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderStatus(),
		m.input.View(),
	)
}

func (m Model) renderHeader() string {
	who := "not registered"
	if id, ok := m.cfg.Identity.Current(); ok {
		who = util.MaskEmail(id.Email)
	}
	title := m.theme.HeaderTitle.Render("carechat")
	sub := m.theme.HeaderSubtitle.Render(fmt.Sprintf("%s  %s", m.cfg.ServerURL, who))
	return m.theme.Header.Width(m.width).Render(title + "  " + sub)
}

func (m Model) renderStatus() string {
	var state string
	switch m.state {
	case core.StateSending:
		state = m.theme.StatusBusy.Render(m.spinner.View() + " waiting for reply")
	case core.StateBlocked:
		state = m.theme.StatusBlock.Render("blocked")
	case core.StateError:
		state = m.theme.Error.Render("error")
	default:
		state = m.theme.StatusIdle.Render("ready")
	}

	parts := []string{state}
	if queued := m.cfg.Session.Pending(); queued > 0 {
		parts = append(parts, fmt.Sprintf("%d queued", queued))
	}
	if m.hasUsage {
		parts = append(parts, m.usageLabel())
	}
	if m.statusMsg != "" {
		parts = append(parts, m.statusMsg)
	} else {
		parts = append(parts, m.help.ShortHelpView(m.keyMap.ShortHelp()))
	}
	return m.theme.StatusBar.Width(m.width).Render(strings.Join(parts, "  |  "))
}

// usageLabel is the compact quota shown in the status bar.
func (m Model) usageLabel() string {
	if remaining, ok := m.usage.Remaining(); ok {
		return fmt.Sprintf("%d/%d used, %d left", m.usage.UsageCount, m.usage.Limit, remaining)
	}
	return fmt.Sprintf("%d used", m.usage.UsageCount)
}

func (m Model) renderHelp() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("Keys"))
	b.WriteString("\n")
	b.WriteString(m.help.FullHelpView(m.keyMap.FullHelp()))
	b.WriteString("\n\n")
	b.WriteString(m.theme.HeaderTitle.Render("Commands"))
	b.WriteString("\n")
	for _, row := range [][2]string{
		{"/topics", "show the topic index"},
		{"/usage", "show your message quota"},
		{"/register EMAIL AGE [SEX]", "register without leaving"},
		{"/whoami", "show the registered email"},
		{"/cancel", "abandon the pending reply"},
		{"/clear", "clear the screen"},
		{"/quit", "leave"},
	} {
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			m.theme.ShortcutKey.Render(fmt.Sprintf("%-26s", row[0])),
			m.theme.ShortcutDesc.Render(row[1])))
	}
	return lipgloss.NewStyle().Height(m.viewport.Height).Render(b.String())
}

// renderEntries renders the transcript for the viewport.
func (m Model) renderEntries() string {
	width := max(m.width-2, 20)
	var blocks []string

	for _, e := range m.entries {
		if e.message == nil {
			style := m.theme.Note
			if e.isError {
				style = m.theme.Error.PaddingLeft(2)
			}
			blocks = append(blocks, style.Width(width).Render(e.note))
			continue
		}
		blocks = append(blocks, m.renderMessage(*e.message, width))
	}
	return strings.Join(blocks, "\n")
}

func (m Model) renderMessage(msg model.Message, width int) string {
	if msg.IsSystem() {
		label := m.theme.SystemLabel.Render("[" + msg.Sender.String() + "]")
		return label + "\n" + m.theme.SystemBody.Width(width).Render(msg.Text)
	}

	labelStyle := m.theme.UserLabel
	if msg.IsBot() {
		labelStyle = m.theme.BotLabel
	}
	label := labelStyle.Render(msg.Sender.DisplayName() + ":")
	return label + "\n" + m.theme.MessageBody.Width(width).Render(msg.Text)
}

// formatTopics renders a topic index as a note.
func formatTopics(msg topicsMsg) string {
	index := msg.index
	var b strings.Builder
	fmt.Fprintf(&b, "Topics: %d sections", index.TotalSections)
	if len(index.Topics) == 0 {
		b.WriteString(" (none listed)")
	}
	for _, e := range index.Topics {
		fmt.Fprintf(&b, "\n[%s] %s", e.ID, e.Source)
		if len(e.Topics) > 0 {
			fmt.Fprintf(&b, ": %s", strings.Join(e.Topics, ", "))
		}
	}
	return b.String()
}
