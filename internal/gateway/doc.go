// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway provides the JSON-over-HTTP transport to the chat backend.
//
// The gateway is deliberately thin: it serializes request bodies, performs
// exactly one HTTP exchange per call and classifies the outcome. It never
// retries, logs or caches. Retry policy belongs to callers so that
// non-idempotent operations such as chat sends are never silently
// duplicated.
//
// # Key Types
//
//   - Gateway: the transport, safe for concurrent use
//   - NetworkError: DNS, connection, timeout or cancellation failures
//   - HTTPStatusError: non-2xx answers, carrying the raw body
//   - MalformedResponseError: 2xx answers whose body is not valid JSON
//
// # Usage
//
//	gw := gateway.New("http://127.0.0.1:5001", gateway.Options{})
//	raw, err := gw.Send(ctx, http.MethodPost, "/chat", body)
//	var statusErr *gateway.HTTPStatusError
//	if errors.As(err, &statusErr) {
//	    // statusErr.Code, statusErr.RawBody
//	}
package gateway
