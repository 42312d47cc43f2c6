// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"errors"
	"fmt"
)

// Error kinds reported by Kind.
const (
	KindNetwork    = "network"
	KindHTTPStatus = "http_status"
	KindMalformed  = "malformed"
	KindUnknown    = "unknown"
)

// NetworkError reports a transport failure: DNS resolution, refused
// connections, timeouts or a cancelled context.
type NetworkError struct {
	Cause error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Cause)
}

// Unwrap exposes the underlying cause so errors.Is works with
// context.Canceled and context.DeadlineExceeded.
func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// HTTPStatusError reports a response with a non-2xx status code.
type HTTPStatusError struct {
	Code    int
	RawBody []byte
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	if len(e.RawBody) == 0 {
		return fmt.Sprintf("server returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("server returned HTTP %d: %s", e.Code, truncateBody(e.RawBody))
}

// Temporary reports whether the status is a server-side failure that an
// idempotent caller may retry.
func (e *HTTPStatusError) Temporary() bool {
	return e.Code >= 500 && e.Code < 600
}

// MalformedResponseError reports a 2xx response whose body could not be
// used: invalid JSON, an unexpected shape or an oversized body.
type MalformedResponseError struct {
	RawBody []byte
	Cause   error
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed response: %v", e.Cause)
	}
	return "malformed response"
}

// Unwrap returns the decoding error, if any.
func (e *MalformedResponseError) Unwrap() error {
	return e.Cause
}

// Kind classifies err into one of the Kind* constants.
func Kind(err error) string {
	var netErr *NetworkError
	var statusErr *HTTPStatusError
	var malformedErr *MalformedResponseError
	switch {
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.As(err, &statusErr):
		return KindHTTPStatus
	case errors.As(err, &malformedErr):
		return KindMalformed
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether an idempotent request that failed with err
// may be re-issued. Cancellation is never retryable.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return !isContextErr(netErr.Cause)
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return false
}

// truncateBody keeps error strings readable when servers return HTML pages.
func truncateBody(body []byte) string {
	const max = 200
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
