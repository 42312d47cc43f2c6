// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package identity holds the registered user and the persisted email slot.
//
// Only the email survives a restart. It is written through a Store, which
// can be a JSON file, a SQLite database, a Badger database or memory. The
// Cache is the single owner of the current Identity: the registration
// manager writes it, chat sessions read it through the Reader interface.
//
// # Key Types
//
//   - Identity: Profile plus the server's registration answer
//   - Cache: Process-wide current identity, kept in step with the Store
//   - Reader: Read-only view given to chat sessions
//   - Store: Persisted email slot (FileStore, SQLiteStore, BadgerStore, MemoryStore)
//   - Watcher: fsnotify watch on a FileStore path
//
// # Usage
//
//	store, err := identity.OpenStore("sqlite", "/home/me/.carechat/identity.db")
//	if err != nil {
//	    return err
//	}
//	cache := identity.NewCache(store)
//	defer cache.Close()
//	if err := cache.Restore(ctx); err != nil {
//	    return err
//	}
//	if id, ok := cache.Current(); ok {
//	    fmt.Println("signed in as", id.Email)
//	}
package identity
