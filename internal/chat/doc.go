// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the chat session: the conversation log, the
// send queue and the quota-driven state machine.
//
// A Session accepts text with Send and returns at once. Accepted sends
// are delivered strictly one at a time in call order, so USER messages
// and their answers never interleave. Every answer is interpreted through
// the quota package; a denial moves the session to StateBlocked, where
// sends are refused locally until Unblock.
//
// # States
//
//	idle ──send──> sending ──reply──> idle
//	                  │  └──deny──> blocked ──Unblock──> idle
//	                  └──failure──> error ──> idle
//
// # Observing
//
// Presentation layers either Subscribe a callback or, for Bubble Tea,
// use Events with WaitForEvent. Events arrive in mutation order and the
// log already reflects an EventAppended when it is delivered.
//
// # Usage
//
//	s := chat.NewSession(gw, cache, logger)
//	defer s.Close()
//	unsubscribe := s.Subscribe(func(ev chat.Event) { render(ev) })
//	defer unsubscribe()
//	if err := s.Send(ctx, "hello"); err != nil {
//	    // ErrEmptyMessage, ErrBlocked, ErrNotRegistered or ErrClosed
//	}
package chat
