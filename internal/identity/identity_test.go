// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// STORE CONTRACT TESTS
// =============================================================================

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sqliteStore, err := OpenSQLiteStore(filepath.Join(dir, "identity.db"))
	require.NoError(t, err)
	badgerStore, err := OpenBadgerStore("")
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(dir, "nested", "identity.json")),
		"sqlite": sqliteStore,
		"badger": badgerStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.LoadEmail(ctx)
			assert.ErrorIs(t, err, ErrNotFound, "fresh store must be empty")

			require.NoError(t, store.SaveEmail(ctx, "a@b.com"))
			email, err := store.LoadEmail(ctx)
			require.NoError(t, err)
			assert.Equal(t, "a@b.com", email)

			require.NoError(t, store.SaveEmail(ctx, "c@d.org"))
			email, err = store.LoadEmail(ctx)
			require.NoError(t, err)
			assert.Equal(t, "c@d.org", email, "save overwrites")

			assert.ErrorIs(t, store.SaveEmail(ctx, "   "), ErrEmptyEmail)

			require.NoError(t, store.Clear(ctx))
			_, err = store.LoadEmail(ctx)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Clear(ctx), "clearing an empty slot succeeds")
		})
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "identity.db")

	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveEmail(ctx, "persist@example.com"))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	email, err := reopened.LoadEmail(ctx)
	require.NoError(t, err)
	assert.Equal(t, "persist@example.com", email)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "identity.badger")

	store, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveEmail(ctx, "persist@example.com"))
	require.NoError(t, store.Close())

	reopened, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	email, err := reopened.LoadEmail(ctx)
	require.NoError(t, err)
	assert.Equal(t, "persist@example.com", email)
}

func TestFileStore_PrivatePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	path := filepath.Join(t.TempDir(), "identity.json")
	store := NewFileStore(path)
	require.NoError(t, store.SaveEmail(context.Background(), "a@b.com"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(path).LoadEmail(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	for _, backend := range []string{"file", "FILE", "", "memory"} {
		store, err := OpenStore(backend, filepath.Join(dir, "id.json"))
		require.NoError(t, err, backend)
		store.Close()
	}

	sqliteStore, err := OpenStore("sqlite", filepath.Join(dir, "id.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, sqliteStore)
	sqliteStore.Close()

	badgerStore, err := OpenStore("badger", filepath.Join(dir, "id.badger"))
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, badgerStore)
	badgerStore.Close()

	_, err = OpenStore("redis", "")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

// =============================================================================
// CACHE TESTS
// =============================================================================

// failingStore rejects every save.
type failingStore struct {
	MemoryStore
}

func (f *failingStore) SaveEmail(ctx context.Context, email string) error {
	return errors.New("disk full")
}

func TestCache_PutOverwritesWithoutMerging(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(NewMemoryStore())

	_, ok := cache.Current()
	assert.False(t, ok)

	first := Identity{Email: "a@b.com", Age: 30, Sex: "F", Status: "created", Message: "first", UsageCount: 0, RegisteredAt: time.Now()}
	require.NoError(t, cache.Put(ctx, first))

	second := Identity{Email: "a@b.com", Age: 30, Sex: "F", UsageCount: 3, RegisteredAt: time.Now()}
	require.NoError(t, cache.Put(ctx, second))

	got, ok := cache.Current()
	require.True(t, ok)
	assert.Equal(t, second, got)
	assert.Empty(t, got.Status, "fields from the first answer must not survive")
	assert.Equal(t, "a@b.com", cache.Email())
}

func TestCache_PutFailureLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(&failingStore{})

	err := cache.Put(ctx, Identity{Email: "a@b.com"})
	require.Error(t, err)

	_, ok := cache.Current()
	assert.False(t, ok)
}

func TestCache_PutTrimsAndRejectsBlank(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cache := NewCache(store)

	assert.ErrorIs(t, cache.Put(ctx, Identity{Email: "  "}), ErrEmptyEmail)

	require.NoError(t, cache.Put(ctx, Identity{Email: "  a@b.com "}))
	email, err := store.LoadEmail(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", email)
	assert.Equal(t, "a@b.com", cache.Email())
}

func TestCache_RestoreAndClear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "identity.json")

	writer := NewCache(NewFileStore(path))
	require.NoError(t, writer.Put(ctx, Identity{Email: "a@b.com", Age: 30, RegisteredAt: time.Now()}))

	reader := NewCache(NewFileStore(path))
	require.NoError(t, reader.Restore(ctx))
	got, ok := reader.Current()
	require.True(t, ok)
	assert.Equal(t, "a@b.com", got.Email)
	assert.True(t, got.Restored())
	assert.Zero(t, got.Age, "only the email is persisted")

	require.NoError(t, reader.Clear(ctx))
	_, ok = reader.Current()
	assert.False(t, ok)

	require.NoError(t, writer.Restore(ctx))
	_, ok = writer.Current()
	assert.False(t, ok, "restore after another process logged out empties the cache")
}

func TestCache_RestoreKeepsRicherIdentity(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(NewMemoryStore())
	id := Identity{Email: "a@b.com", Age: 41, Status: "ok", RegisteredAt: time.Now()}
	require.NoError(t, cache.Put(ctx, id))

	require.NoError(t, cache.Restore(ctx))
	got, _ := cache.Current()
	assert.Equal(t, id, got)
}

func TestCache_ImplementsReader(t *testing.T) {
	var _ Reader = NewCache(nil)
}

// =============================================================================
// WATCHER TESTS
// =============================================================================

func TestWatcher_ReportsExternalWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.json")

	w, err := NewWatcher(path, 20*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	changed := make(chan struct{}, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func() { changed <- struct{}{} })

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0600))

	require.NoError(t, NewFileStore(path).SaveEmail(context.Background(), "a@b.com"))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestWatcher_ReportsSQLiteWriteFromAnotherStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.db")

	// The chat host keeps its own connection open for the whole session.
	held, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer held.Close()

	w, err := NewWatcher(path, 20*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	changed := make(chan struct{}, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func() { changed <- struct{}{} })

	other, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, other.SaveEmail(context.Background(), "new@b.com"))
	require.NoError(t, other.Close())

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification for a registration saved by another store")
	}

	email, err := held.LoadEmail(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new@b.com", email)
}

func TestWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "nope", "identity.json"), 0, nil)
	assert.Error(t, err)
}
