// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

var badgerEmailKey = []byte("identity/email")

// BadgerStore keeps the email under a single key in a Badger database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a Badger database in dir. An empty dir
// opens an in-memory database.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).
		WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open identity database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) LoadEmail(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var email string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerEmailKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			email = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read identity: %w", err)
	}
	if strings.TrimSpace(email) == "" {
		return "", ErrNotFound
	}
	return email, nil
}

func (s *BadgerStore) SaveEmail(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(email) == "" {
		return ErrEmptyEmail
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerEmailKey, []byte(email))
	})
}

func (s *BadgerStore) Clear(ctx context.Context) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerEmailKey)
	})
	if err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
