// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package topics fetches the backend's topic index.
//
// Parsing is strict: one malformed entry rejects the whole index, so
// callers only ever see complete snapshots. The GET is idempotent, which
// is why this client, unlike chat sends, retries transient failures.
package topics
