// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for carechat.
//
// # Key Types
//
//   - Config: Main configuration structure
//   - ServerConfig: Backend URL, timeout and client-side rate limit
//   - IdentityConfig: Where the registered email is persisted
//   - LoggingConfig: slog level and handler format
//
// # Configuration Precedence
//
//   - Environment variables (CARECHAT_*), including values loaded from .env
//   - ~/.carechat/config.toml (or --config PATH)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	gw := gateway.New(cfg.Server.URL, gateway.Options{Timeout: cfg.Timeout()})
package config
