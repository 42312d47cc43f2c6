// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and execution for carechat.
//
// Run is the only entry point main needs. It splits off the global flags,
// loads configuration, builds the gateway and logger, and dispatches to a
// command handler. Handlers return errors; Run prints them and maps them to
// exit codes with ExitCodeFor.
//
// # Usage
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
//	defer stop()
//	os.Exit(cli.Run(ctx, os.Args[1:], cli.StdIO()))
//
// # Commands Overview
//
//   - chat: line-oriented chat, scriptable through stdin
//   - tui: full-screen chat (internal/ui/chat)
//   - register, whoami, logout: identity management
//   - topics, health: one-shot server queries
//   - config: show, path, init, get and set settings
//   - devserver: a local stand-in backend for development
//
// register, whoami, topics and health accept --json and print a
// JSONResponse envelope.
package cli
