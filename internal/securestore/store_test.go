package securestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// backends returns every Store implementation backed by test-local storage.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)

	sqliteStore, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	keyring.MockInit()
	keyringStore, err := NewKeyringStore("ratemeter-test")
	require.NoError(t, err)

	return map[string]Store{
		"file":    fileStore,
		"sqlite":  sqliteStore,
		"keyring": keyringStore,
		"memory":  NewMemoryStore(),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(ctx, "credentials")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Save(ctx, "credentials", []byte(`{"accessToken":"a"}`)))
			data, err := store.Load(ctx, "credentials")
			require.NoError(t, err)
			require.Equal(t, `{"accessToken":"a"}`, string(data))

			// Last writer wins
			require.NoError(t, store.Save(ctx, "credentials", []byte{0x00, 0xff, '\n'}))
			data, err = store.Load(ctx, "credentials")
			require.NoError(t, err)
			require.Equal(t, []byte{0x00, 0xff, '\n'}, data)

			require.NoError(t, store.Delete(ctx, "credentials"))
			_, err = store.Load(ctx, "credentials")
			require.ErrorIs(t, err, ErrNotFound)

			// Deleting a missing record is fine
			require.NoError(t, store.Delete(ctx, "credentials"))

			require.Error(t, store.Save(ctx, "", []byte("x")))
		})
	}
}

func TestStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, store := range backends(t) {
		if name == "sqlite" {
			// database/sql reports cancellation from the driver; covered by the contract test
			continue
		}
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, store.Save(ctx, "k", []byte("v")), context.Canceled)
			_, err := store.Load(ctx, "k")
			require.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestFileStoreSharedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// Two stores over the same directory behave like two processes
	writer, err := NewFileStore(dir)
	require.NoError(t, err)
	reader, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, writer.Save(ctx, "cached_rate_data", []byte("snapshot")))
	data, err := reader.Load(ctx, "cached_rate_data")
	require.NoError(t, err)
	require.Equal(t, "snapshot", string(data))

	info, err := os.Stat(filepath.Join(dir, "cached_rate_data.json"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// No temp files are left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSQLiteStoreFilesAreOwnerOnly(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0755))
	path := filepath.Join(dir, "ratemeter.db")

	// Sidecar left world-readable by an earlier run
	require.NoError(t, os.WriteFile(path+"-wal", nil, 0644))
	require.NoError(t, os.Chmod(path+"-wal", 0644))

	store, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Save(ctx, "credentials", []byte("secret")))
	data, err := store.Load(ctx, "credentials")
	require.NoError(t, err)
	require.Equal(t, "secret", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, entry := range entries {
		info, err := entry.Info()
		require.NoError(t, err)
		require.Zero(t, info.Mode().Perm()&0077, "%s has mode %s", entry.Name(), info.Mode().Perm())
	}
}

func TestFileStoreRejectsInsecurePermissions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, "credentials", []byte("secret")))
	require.NoError(t, os.Chmod(filepath.Join(dir, "credentials.json"), 0644))

	_, err = store.Load(ctx, "credentials")
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr), "expected StoreError, got %v", err)
	require.Equal(t, "load", storeErr.Op)
	require.Equal(t, "credentials", storeErr.Key)
}

func TestFileStoreRejectsPathKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../escape", "a/b", ".."} {
		require.Error(t, store.Save(context.Background(), key, []byte("x")), key)
	}
}

func TestMemoryStoreInjectedError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Err = errors.New("keychain locked")

	err := store.Save(ctx, "credentials", []byte("x"))
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	require.EqualError(t, err, "save credentials: keychain locked")
}
