// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/carechat/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned by LoadEmail when nothing is persisted.
	ErrNotFound = errors.New("no persisted identity")

	// ErrEmptyEmail is returned when asked to persist a blank email.
	ErrEmptyEmail = errors.New("email is empty")

	// ErrUnknownBackend is returned by OpenStore for unsupported backends.
	ErrUnknownBackend = errors.New("unknown identity backend")
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store persists the single identity field the client keeps across runs:
// the registered email.
type Store interface {
	// LoadEmail returns the persisted email or ErrNotFound.
	LoadEmail(ctx context.Context) (string, error)

	// SaveEmail overwrites the persisted email.
	SaveEmail(ctx context.Context, email string) error

	// Clear removes the persisted email. Clearing an empty slot succeeds.
	Clear(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// OpenStore opens the store for backend at path. path is ignored by the
// memory backend.
func OpenStore(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", "file":
		return NewFileStore(path), nil
	case "sqlite":
		return OpenSQLiteStore(path)
	case "badger":
		return OpenBadgerStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore keeps the email in memory. Used in tests and when the user
// opts out of persistence.
type MemoryStore struct {
	mu    sync.Mutex
	email string
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LoadEmail(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.email == "" {
		return "", ErrNotFound
	}
	return s.email, nil
}

func (s *MemoryStore) SaveEmail(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(email) == "" {
		return ErrEmptyEmail
	}
	s.mu.Lock()
	s.email = email
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.email = ""
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// =============================================================================
// FILE STORE
// =============================================================================

// fileRecord is the on-disk layout of the file store.
type fileRecord struct {
	Email   string    `json:"email"`
	SavedAt time.Time `json:"saved_at"`
}

// FileStore keeps the email in a small JSON file written atomically with
// 0600 permissions.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file store at path. The file is created on the
// first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) LoadEmail(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read identity file: %w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("decode identity file: %w", err)
	}
	if strings.TrimSpace(rec.Email) == "" {
		return "", ErrNotFound
	}
	return rec.Email, nil
}

func (s *FileStore) SaveEmail(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(email) == "" {
		return ErrEmptyEmail
	}

	data, err := json.MarshalIndent(fileRecord{Email: email, SavedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// SECURITY: Email is personal data; owner read/write only.
	if err := util.AtomicWriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write identity file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := util.RemoveIfExists(s.path); err != nil {
		return fmt.Errorf("remove identity file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
