// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes for carechat commands.
//
// Commands always return errors; Run decides how to print them and which
// exit code to use.

package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/carechat/internal/chat"
	"github.com/jeranaias/carechat/internal/config"
	"github.com/jeranaias/carechat/internal/gateway"
	"github.com/jeranaias/carechat/internal/registration"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates a missing or rejected registration
	ExitAuthError = 4
	// ExitNetworkError indicates the backend could not be reached
	ExitNetworkError = 5
	// ExitServerError indicates an HTTP error status or malformed answer
	ExitServerError = 6
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports invalid command-line usage.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	return e.Reason
}

// CommandError wraps a failure with the command that produced it.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// errNotRegistered is returned by commands that need an identity.
var errNotRegistered = errors.New("not registered; run 'carechat register --email EMAIL --age AGE --sex SEX' first")

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// ExitCodeFor maps an error to a process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	var validationErr *registration.ValidationError
	var cfgErrs config.ValidateErrors
	var cfgErr config.ValidationError
	var regErr *registration.RegistrationError

	switch {
	case errors.As(err, &usageErr), errors.As(err, &validationErr):
		return ExitUsageError
	case errors.As(err, &cfgErrs), errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.Is(err, errNotRegistered), errors.Is(err, chat.ErrNotRegistered):
		return ExitAuthError
	}

	switch gateway.Kind(err) {
	case gateway.KindNetwork:
		return ExitNetworkError
	case gateway.KindHTTPStatus, gateway.KindMalformed:
		if errors.As(err, &regErr) {
			return ExitAuthError
		}
		return ExitServerError
	}

	if errors.As(err, &regErr) {
		return ExitAuthError
	}
	return ExitGeneralError
}
