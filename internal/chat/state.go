// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "errors"

// =============================================================================
// STATE
// =============================================================================

// State is the session's position in its send/receive cycle.
type State int

const (
	// StateIdle accepts new sends.
	StateIdle State = iota

	// StateSending has one exchange in flight.
	StateSending

	// StateBlocked is reached when the server denies quota. Only Unblock,
	// driven by a registration or upgrade, leaves it.
	StateBlocked

	// StateError is transient: the session returns to StateIdle right
	// after the error message is appended.
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateBlocked:
		return "blocked"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyMessage is returned for empty or whitespace-only text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrBlocked is returned while the usage quota is exhausted.
	ErrBlocked = errors.New("usage limit reached")

	// ErrNotRegistered is returned when no identity is cached.
	ErrNotRegistered = errors.New("not registered")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)
