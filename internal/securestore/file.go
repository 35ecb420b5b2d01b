package securestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps one file per key inside a private directory.
// Writes use temp file + rename so concurrent readers never observe a partial record.
type FileStore struct {
	dir string
}

// Compile-time check to ensure FileStore implements Store
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at dir, creating it with 0700
// permissions if it doesn't exist.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &FileStore{
		dir: dir,
	}, nil
}

func (f *FileStore) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if filepath.Base(key) != key || key == "." || key == ".." {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}

// Load returns the stored record. Returns ErrNotFound if the file doesn't exist
// and an error if it has insecure permissions.
func (f *FileStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := f.path(key)
	if err != nil {
		return nil, err
	}

	// Check file permissions before reading
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("load", key, err)
	}
	if info.Mode().Perm() != 0600 {
		return nil, wrap("load", key, fmt.Errorf("insecure permissions on %s: %04o (expected 0600)", path, info.Mode().Perm()))
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		// Deleted between Stat and ReadFile by another process
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("load", key, err)
	}
	return data, nil
}

// Save atomically replaces the record using temp file + rename.
// The final file has 0600 permissions (owner read/write only).
func (f *FileStore) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := f.path(key)
	if err != nil {
		return err
	}

	// Create secure temp file in same directory for atomic rename
	tempFile, err := os.CreateTemp(f.dir, "*.tmp")
	if err != nil {
		return wrap("save", key, err)
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	// CreateTemp already uses 0600, but be explicit before any data lands on disk
	if err := tempFile.Chmod(0600); err != nil {
		return wrap("save", key, err)
	}

	if _, err := tempFile.Write(data); err != nil {
		return wrap("save", key, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Sync(); err != nil {
		return wrap("save", key, err)
	}
	if err := tempFile.Close(); err != nil {
		return wrap("save", key, err)
	}

	if err := os.Rename(tempName, path); err != nil {
		return wrap("save", key, err)
	}

	return nil
}

// Delete removes the record file if present.
func (f *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := f.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return wrap("delete", key, err)
	}
	return nil
}
