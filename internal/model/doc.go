// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Sender: Message origin enumeration (USER, BOT, SYSTEM)
//   - Message: Immutable log entry with a per-log sequence number
//   - ConversationLog: Append-only ordered record owned by one chat session
//
// # Usage
//
//	log := model.NewConversationLog()
//	log.Append(model.SenderUser, "I feel anxious today")
//	log.Append(model.SenderBot, model.UnescapeReply(reply))
//	for _, msg := range log.Snapshot() {
//	    fmt.Printf("%s: %s\n", msg.Sender.DisplayName(), msg.Text)
//	}
package model
