// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"
)

// =============================================================================
// SENDER TYPE
// =============================================================================

// Sender identifies who produced a message.
type Sender int

const (
	SenderUser Sender = iota
	SenderBot
	SenderSystem
)

// String returns the wire-style name of the sender.
func (s Sender) String() string {
	switch s {
	case SenderUser:
		return "USER"
	case SenderBot:
		return "BOT"
	case SenderSystem:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// DisplayName returns a human-readable name for the sender.
func (s Sender) DisplayName() string {
	switch s {
	case SenderUser:
		return "You"
	case SenderBot:
		return "Bot"
	case SenderSystem:
		return "System"
	default:
		return "?"
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single entry in a conversation log. Messages are values and
// are never modified after they are appended.
type Message struct {
	// ID is the position of the message in its log, starting at 0.
	ID        uint64    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// IsUser returns true if the message was typed by the user.
func (m Message) IsUser() bool {
	return m.Sender == SenderUser
}

// IsBot returns true if the message is a backend reply.
func (m Message) IsBot() bool {
	return m.Sender == SenderBot
}

// IsSystem returns true if the message was produced by the client itself.
func (m Message) IsSystem() bool {
	return m.Sender == SenderSystem
}

// Lines splits the message text into display lines.
func (m Message) Lines() []string {
	return strings.Split(m.Text, "\n")
}

// =============================================================================
// REPLY TEXT
// =============================================================================

// UnescapeReply converts the literal two-character sequence `\n` that the
// backend embeds in replies into real line breaks. It is applied exactly
// once per reply; text that already holds real newlines is left alone.
func UnescapeReply(reply string) string {
	return strings.ReplaceAll(reply, `\n`, "\n")
}
