// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS identity (
	slot     TEXT PRIMARY KEY,
	email    TEXT NOT NULL,
	saved_at INTEGER NOT NULL
)`

// defaultSlot is the only row the client ever writes.
const defaultSlot = "default"

// SQLiteStore keeps the email in a single-row SQLite table.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLiteStore opens (or creates) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite identity store requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// A rollback journal commits into the main file, which is the file
	// Watcher follows. WAL would leave other processes' writes in -wal
	// until a checkpoint.
	pragmas := []string{
		"PRAGMA journal_mode=DELETE",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	// SECURITY: Email is personal data; owner read/write only.
	_ = os.Chmod(path, 0600)

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) LoadEmail(ctx context.Context) (string, error) {
	var email string
	err := s.db.QueryRowContext(ctx,
		`SELECT email FROM identity WHERE slot = ?`, defaultSlot,
	).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query identity: %w", err)
	}
	if strings.TrimSpace(email) == "" {
		return "", ErrNotFound
	}
	return email, nil
}

func (s *SQLiteStore) SaveEmail(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmptyEmail
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identity (slot, email, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET email = excluded.email, saved_at = excluded.saved_at`,
		defaultSlot, email, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM identity WHERE slot = ?`, defaultSlot); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
