// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// IDENTITY
// =============================================================================

// Identity is a registered user as the client knows it. Email, Age and Sex
// come from the submitted profile; Status, Message and UsageCount from the
// server's registration answer.
//
// An Identity restored from disk carries only the Email.
type Identity struct {
	Email        string
	Age          int
	Sex          string
	Status       string
	Message      string
	UsageCount   int
	RegisteredAt time.Time
}

// Restored reports whether the identity came from the persisted slot
// rather than a registration in this process.
func (i Identity) Restored() bool {
	return i.RegisteredAt.IsZero()
}

// =============================================================================
// CACHE
// =============================================================================

// Reader is the read-only view handed to chat sessions. Sessions never
// write the identity.
type Reader interface {
	// Current returns the cached identity and false when nobody is registered.
	Current() (Identity, bool)
}

// Cache holds the current identity for the process and keeps the persisted
// email slot in step with it. It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	store   Store
	current Identity
	ok      bool
}

// NewCache creates an empty cache backed by store.
func NewCache(store Store) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Cache{store: store}
}

// Restore loads the persisted email, if any. A missing slot is not an error.
func (c *Cache) Restore(ctx context.Context) error {
	email, err := c.store.LoadEmail(ctx)
	if errors.Is(err, ErrNotFound) {
		c.mu.Lock()
		c.current, c.ok = Identity{}, false
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore identity: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Keep the richer in-process identity when it matches the stored email.
	if c.ok && c.current.Email == email {
		return nil
	}
	c.current, c.ok = Identity{Email: email}, true
	return nil
}

// Current implements Reader.
func (c *Cache) Current() (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.ok
}

// Email returns the cached email or "".
func (c *Cache) Email() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Email
}

// Put persists id.Email and, only if that succeeds, replaces the cached
// identity. The previous value is overwritten, never merged.
func (c *Cache) Put(ctx context.Context, id Identity) error {
	email := strings.TrimSpace(id.Email)
	if email == "" {
		return ErrEmptyEmail
	}
	id.Email = email

	if err := c.store.SaveEmail(ctx, email); err != nil {
		return fmt.Errorf("persist identity: %w", err)
	}

	c.mu.Lock()
	c.current, c.ok = id, true
	c.mu.Unlock()
	return nil
}

// Clear removes the persisted slot and empties the cache.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	c.mu.Lock()
	c.current, c.ok = Identity{}, false
	c.mu.Unlock()
	return nil
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}
