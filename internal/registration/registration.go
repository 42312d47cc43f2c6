// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package registration turns a user profile into a registered identity.
//
// Validation is deliberately shallow: the email must be non-empty and the
// age non-negative. Everything else is the server's call. Every Register
// call goes to the network, even for a profile that was registered before;
// the cached identity always reflects the latest answer.
package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/carechat/internal/gateway"
	"github.com/jeranaias/carechat/internal/identity"
	"github.com/jeranaias/carechat/internal/util"
)

// RegisterPath is the backend endpoint for registration.
const RegisterPath = "/auth/register"

// Sender is the part of the gateway the manager needs.
type Sender interface {
	Send(ctx context.Context, method, path string, body any) (json.RawMessage, error)
}

// =============================================================================
// TYPES
// =============================================================================

// Profile is the user input submitted for registration.
type Profile struct {
	Email string
	Age   int
	Sex   string
}

// registerRequest is the POST /auth/register body.
type registerRequest struct {
	Email string `json:"email"`
	Age   int    `json:"age"`
	Sex   string `json:"sex"`
}

// registerResponse lists the fields consumed from the answer. All are
// optional: absent fields decode to zero values.
type registerResponse struct {
	Status     *string `json:"status"`
	Message    *string `json:"message"`
	UsageCount *int    `json:"usage_count"`
	Error      *string `json:"error"`

	// Older servers answer {"success": "User registered"} instead.
	Success *string `json:"success"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ValidationError reports a profile rejected locally, before any network
// call. It is a refusal, not a failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RegistrationError reports that registration did not complete: the server
// rejected the profile, the transport failed or the email could not be
// persisted. Nothing is cached when it is returned.
type RegistrationError struct {
	Reason string
	Err    error
}

func (e *RegistrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("registration failed: %s: %v", e.Reason, e.Err)
	}
	return "registration failed: " + e.Reason
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager registers users and owns writes to the identity cache.
type Manager struct {
	sender Sender
	cache  *identity.Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a manager writing to cache. A nil logger uses
// slog.Default().
func NewManager(sender Sender, cache *identity.Cache, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sender: sender,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// Validate checks the profile locally.
func Validate(p Profile) error {
	if strings.TrimSpace(p.Email) == "" {
		return &ValidationError{Field: "email", Reason: "must not be empty"}
	}
	if p.Age < 0 {
		return &ValidationError{Field: "age", Reason: "must be a non-negative integer"}
	}
	return nil
}

// Register submits the profile and, on success, persists the email and
// replaces the cached identity.
func (m *Manager) Register(ctx context.Context, p Profile) (identity.Identity, error) {
	if err := Validate(p); err != nil {
		return identity.Identity{}, err
	}
	p.Email = strings.TrimSpace(p.Email)
	p.Sex = strings.TrimSpace(p.Sex)

	start := m.now()
	raw, err := m.sender.Send(ctx, http.MethodPost, RegisterPath, registerRequest{
		Email: p.Email,
		Age:   p.Age,
		Sex:   p.Sex,
	})
	if err != nil {
		m.logger.Warn("registration request failed",
			"email", util.MaskEmail(p.Email),
			"kind", gateway.Kind(err),
		)
		return identity.Identity{}, &RegistrationError{Reason: describeGatewayError(err), Err: err}
	}

	var resp registerResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		malformed := &gateway.MalformedResponseError{RawBody: raw, Cause: err}
		return identity.Identity{}, &RegistrationError{Reason: "unexpected response from server", Err: malformed}
	}

	// Some servers answer 200 with only an error field.
	if resp.Status == nil && resp.Error != nil && strings.TrimSpace(*resp.Error) != "" {
		return identity.Identity{}, &RegistrationError{Reason: *resp.Error}
	}

	id := identity.Identity{
		Email:        p.Email,
		Age:          p.Age,
		Sex:          p.Sex,
		Status:       deref(resp.Status),
		Message:      deref(resp.Message),
		RegisteredAt: m.now(),
	}
	if id.Message == "" {
		id.Message = deref(resp.Success)
	}
	if resp.UsageCount != nil && *resp.UsageCount > 0 {
		id.UsageCount = *resp.UsageCount
	}

	if err := m.cache.Put(ctx, id); err != nil {
		return identity.Identity{}, &RegistrationError{Reason: "could not save identity", Err: err}
	}

	m.logger.Info("registered",
		"email", util.MaskEmail(id.Email),
		"status", id.Status,
		"usage_count", id.UsageCount,
		"duration", m.now().Sub(start),
	)
	return id, nil
}

// Logout forgets the registered identity.
func (m *Manager) Logout(ctx context.Context) error {
	return m.cache.Clear(ctx)
}

// Current returns the cached identity.
func (m *Manager) Current() (identity.Identity, bool) {
	return m.cache.Current()
}

// describeGatewayError produces a user-facing reason. A 4xx body carrying
// {"error": "..."} is surfaced as-is since it is the server's own message.
func describeGatewayError(err error) string {
	var statusErr *gateway.HTTPStatusError
	if errors.As(err, &statusErr) {
		var body struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(statusErr.RawBody, &body) == nil {
			if body.Error != "" {
				return body.Error
			}
			if body.Detail != "" {
				return body.Detail
			}
		}
		return fmt.Sprintf("server returned HTTP %d", statusErr.Code)
	}

	switch gateway.Kind(err) {
	case gateway.KindNetwork:
		return "could not reach server"
	case gateway.KindMalformed:
		return "unexpected response from server"
	default:
		return "request failed"
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
