// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sync"
	"time"
)

// =============================================================================
// CONVERSATION LOG
// =============================================================================

// ConversationLog is an append-only, ordered record of messages.
//
// Insertion order is chronological and authoritative for display. Entries
// are never reordered or removed. ConversationLog is safe for concurrent
// use; readers receive copies.
type ConversationLog struct {
	mu       sync.RWMutex
	messages []Message
	nextID   uint64

	// now is swapped in tests.
	now func() time.Time
}

// NewConversationLog creates an empty log.
func NewConversationLog() *ConversationLog {
	return &ConversationLog{
		messages: make([]Message, 0, 16),
		now:      time.Now,
	}
}

// Append adds a message from sender and returns the stored value.
func (l *ConversationLog) Append(sender Sender, text string) Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := Message{
		ID:        l.nextID,
		Sender:    sender,
		Text:      text,
		Timestamp: l.now(),
	}
	l.nextID++
	l.messages = append(l.messages, msg)
	return msg
}

// Snapshot returns a copy of every message in order.
func (l *ConversationLog) Snapshot() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}
