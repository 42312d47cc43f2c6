// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the carechat packages.
//
// # Key Functions
//
//   - AtomicWriteFile: Crash-safe file writing with fsync
//   - RemoveIfExists: Delete a file, ignoring a missing one
//   - TruncateRunes: UTF-8 safe string truncation with ellipsis
//   - IsBlank: Whitespace-only check used for message validation
//   - MaskEmail: Redact an email address for display and logs
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0600)
//	log.Info("registered", "email", util.MaskEmail(email))
package util
