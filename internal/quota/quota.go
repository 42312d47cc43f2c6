// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package quota interprets the usage fields reported by the chat backend.
//
// The server is the only authority on quota: Evaluate never re-derives the
// allow/deny decision from usage and limit numbers. When the server says
// allowed=false the client stops sending; when it omits the flag the numbers
// are informational only.
package quota

import "fmt"

// Fields are the quota-related fields of a server response. Nil means the
// field was absent.
type Fields struct {
	Allowed  *bool
	UsageNow *int
	Limit    *int
}

// UsageState is the client's view of the user's quota after one response.
type UsageState struct {
	// UsageCount is the server-reported usage (0 when absent).
	UsageCount int

	// Limit is the server-reported limit; meaningful only when !Unbounded.
	Limit int

	// Unbounded is true when the server sent no positive limit.
	Unbounded bool

	// Allowed is false only when the server explicitly denied the request.
	Allowed bool

	// Gated reports whether the server sent an explicit allowed flag.
	Gated bool
}

// Evaluate converts response fields into a UsageState.
func Evaluate(f Fields) UsageState {
	state := UsageState{
		Allowed:   true,
		Unbounded: true,
	}

	if f.UsageNow != nil && *f.UsageNow > 0 {
		state.UsageCount = *f.UsageNow
	}
	if f.Limit != nil && *f.Limit > 0 {
		state.Limit = *f.Limit
		state.Unbounded = false
	}
	if f.Allowed != nil {
		state.Gated = true
		state.Allowed = *f.Allowed
	}

	return state
}

// Remaining returns how many requests are left according to the last
// response, and false when the quota is unbounded.
func (s UsageState) Remaining() (int, bool) {
	if s.Unbounded {
		return 0, false
	}
	if s.UsageCount >= s.Limit {
		return 0, true
	}
	return s.Limit - s.UsageCount, true
}

// Describe returns the user-facing text for the state. Denied states get
// the upgrade notice shown in the conversation log.
func (s UsageState) Describe() string {
	if !s.Allowed {
		if s.Unbounded {
			return "Free limit reached. Please upgrade."
		}
		return fmt.Sprintf("Free limit reached (%d/%d). Please upgrade.", s.UsageCount, s.Limit)
	}
	if s.Unbounded {
		return fmt.Sprintf("%d messages used", s.UsageCount)
	}
	return fmt.Sprintf("%d of %d messages used", s.UsageCount, s.Limit)
}
