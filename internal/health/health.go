// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package health probes the backend's liveness endpoint.
//
// The body is opaque: it is surfaced verbatim whether or not it is JSON.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// HealthPath is the backend liveness endpoint.
const HealthPath = "/health"

// RawSender is the part of the gateway the probe needs.
type RawSender interface {
	SendRaw(ctx context.Context, method, path string, body any) ([]byte, error)
}

// Report is the outcome of a successful probe.
type Report struct {
	Body    string        `json:"body"`
	Latency time.Duration `json:"latency"`
}

// Status returns the "status" field when the body is a JSON object that
// carries one, and "" otherwise.
func (r Report) Status() string {
	var body struct {
		Status string `json:"status"`
	}
	if json.Unmarshal([]byte(r.Body), &body) != nil {
		return ""
	}
	return body.Status
}

// Check issues GET /health once. Failures are returned as the gateway's
// typed errors; there is no retry.
func Check(ctx context.Context, sender RawSender) (Report, error) {
	start := time.Now()
	raw, err := sender.SendRaw(ctx, http.MethodGet, HealthPath, nil)
	latency := time.Since(start)
	if err != nil {
		return Report{Latency: latency}, err
	}
	return Report{
		Body:    strings.TrimRight(string(raw), "\r\n"),
		Latency: latency,
	}, nil
}
