// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// SENDER TESTS
// =============================================================================

func TestSender_String(t *testing.T) {
	tests := []struct {
		sender Sender
		want   string
	}{
		{SenderUser, "USER"},
		{SenderBot, "BOT"},
		{SenderSystem, "SYSTEM"},
		{Sender(42), "UNKNOWN"},
	}

	for _, tc := range tests {
		if got := tc.sender.String(); got != tc.want {
			t.Errorf("Sender(%d).String() = %q, want %q", tc.sender, got, tc.want)
		}
	}
}

// =============================================================================
// UNESCAPE TESTS
// =============================================================================

func TestUnescapeReply(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "escaped newline", input: `Hello\nWorld`, want: "Hello\nWorld"},
		{name: "several", input: `a\nb\nc`, want: "a\nb\nc"},
		{name: "real newline untouched", input: "Hello\nWorld", want: "Hello\nWorld"},
		{name: "no escapes", input: "plain", want: "plain"},
		{name: "empty", input: "", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := UnescapeReply(tc.input); got != tc.want {
				t.Errorf("UnescapeReply(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestUnescapeReply_DisplaysTwoLines(t *testing.T) {
	msg := Message{Sender: SenderBot, Text: UnescapeReply(`Hello\nWorld`)}
	lines := msg.Lines()
	if len(lines) != 2 || lines[0] != "Hello" || lines[1] != "World" {
		t.Errorf("Lines() = %q, want [Hello World]", lines)
	}
}

// =============================================================================
// CONVERSATION LOG TESTS
// =============================================================================

func TestConversationLog_AppendAssignsSequentialIDs(t *testing.T) {
	log := NewConversationLog()
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	log.now = func() time.Time { return fixed }

	first := log.Append(SenderUser, "hi")
	second := log.Append(SenderBot, "hello")
	third := log.Append(SenderSystem, "note")

	if first.ID != 0 || second.ID != 1 || third.ID != 2 {
		t.Errorf("IDs = %d,%d,%d, want 0,1,2", first.ID, second.ID, third.ID)
	}
	if !first.Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", first.Timestamp, fixed)
	}
	if snap := log.Snapshot(); len(snap) != 3 || snap[2].Text != "note" {
		t.Errorf("Snapshot() = %+v", snap)
	}
}

func TestConversationLog_SnapshotIsACopy(t *testing.T) {
	log := NewConversationLog()
	log.Append(SenderUser, "original")

	snap := log.Snapshot()
	snap[0].Text = "mutated"

	if got := log.Snapshot()[0].Text; got != "original" {
		t.Errorf("log was mutated through snapshot: %q", got)
	}
}

func TestConversationLog_EmptySnapshot(t *testing.T) {
	if snap := NewConversationLog().Snapshot(); len(snap) != 0 {
		t.Errorf("Snapshot() on empty log = %+v", snap)
	}
}

func TestConversationLog_ConcurrentAppend(t *testing.T) {
	log := NewConversationLog()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			log.Append(SenderUser, fmt.Sprintf("m%d", n))
		}(i)
	}
	wg.Wait()

	snap := log.Snapshot()
	if len(snap) != 50 {
		t.Fatalf("len = %d, want 50", len(snap))
	}
	for i, m := range snap {
		if m.ID != uint64(i) {
			t.Errorf("snap[%d].ID = %d, want %d", i, m.ID, i)
		}
		if !m.IsUser() {
			t.Errorf("snap[%d].Sender = %v, want USER", i, m.Sender)
		}
	}
}
