// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fakebackend provides an in-process emulation of the chat backend
// for tests and local development.
//
// It serves the four endpoints the client consumes, keeps per-user usage
// counts against a free limit and exposes hooks for latency, injected
// failures and malformed bodies.
//
// # Usage
//
//	backend := fakebackend.New(fakebackend.WithLimit(5))
//	server := backend.NewTestServer()
//	defer server.Close()
//
//	backend.FailNext(fakebackend.PathChat, http.StatusBadGateway, 1)
//	gw := gateway.New(server.URL, gateway.Options{})
package fakebackend
