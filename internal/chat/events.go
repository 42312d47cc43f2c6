// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/carechat/internal/model"
	"github.com/jeranaias/carechat/internal/quota"
)

// =============================================================================
// EVENTS
// =============================================================================

// Event is something a presentation layer re-renders on.
type Event interface {
	event()
}

// EventAppended reports a message added to the log.
type EventAppended struct {
	Message model.Message
}

// EventStateChanged reports a state transition.
type EventStateChanged struct {
	From State
	To   State
}

// UnblockedNotice is the hint hosts show when a blocked session resumes.
const UnblockedNotice = "Registration updated. You can continue chatting."

// Unblocked reports whether the transition lifted a quota block.
func (e EventStateChanged) Unblocked() bool {
	return e.From == StateBlocked && e.To == StateIdle
}

// EventUsage reports the quota state from the latest chat response.
type EventUsage struct {
	Usage quota.UsageState
}

// EventDropped reports an accepted send that never reached the wire:
// it was queued behind a quota denial, its context was cancelled while it
// waited, or the session was closed.
type EventDropped struct {
	Text   string
	Reason error
}

func (EventAppended) event()     {}
func (EventStateChanged) event() {}
func (EventUsage) event()        {}
func (EventDropped) event()      {}

// Observer receives events in order. Observers run outside the session
// lock and may call any Session method except Wait.
type Observer func(Event)

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// EventMsg wraps a session event as a Bubble Tea message.
type EventMsg struct {
	Event Event
}

// Events subscribes a buffered channel to the session. Call stop to
// unsubscribe; the channel is left open so pending commands never panic.
func (s *Session) Events(buffer int) (events <-chan Event, stop func()) {
	ch := make(chan Event, buffer)
	done := make(chan struct{})

	unsubscribe := s.Subscribe(func(ev Event) {
		select {
		case ch <- ev:
		case <-done:
		}
	})

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			unsubscribe()
			close(done)
		})
	}
}

// WaitForEvent returns a command that blocks for the next event. A Bubble
// Tea model re-issues it from Update after every EventMsg.
func WaitForEvent(events <-chan Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return EventMsg{Event: ev}
	}
}
