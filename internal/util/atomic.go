// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the carechat packages.
package util

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// AtomicWriteFile replaces path with data so readers see either the old
// content or the new, never a prefix. The data is staged in a hidden
// sibling file, synced, given perm and renamed into place. Missing parent
// directories are created 0700 since they hold per-user state.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("atomic write %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return fmt.Errorf("atomic write %s: create directory: %w", path, err)
	}

	staged, err := stage(filepath.Dir(target), data, perm)
	if err != nil {
		return fmt.Errorf("atomic write %s: %w", path, err)
	}
	if err := os.Rename(staged, target); err != nil {
		os.Remove(staged)
		return fmt.Errorf("atomic write %s: rename: %w", path, err)
	}
	return nil
}

// stage writes data to a synced, closed temp file in dir and returns its
// name. The temp file is removed on any failure.
func stage(dir string, data []byte, perm os.FileMode) (name string, err error) {
	f, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if _, err = f.Write(data); err != nil {
		return "", err
	}
	if err = f.Sync(); err != nil {
		return "", err
	}
	// Windows cannot rename an open file.
	if err = f.Close(); err != nil {
		return "", err
	}
	if err = os.Chmod(f.Name(), perm); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
