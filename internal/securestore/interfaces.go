package securestore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no record exists for the key.
var ErrNotFound = errors.New("record not found")

// Store reads and writes opaque records to persistent storage.
type Store interface {
	// Save replaces the record stored under key.
	Save(ctx context.Context, key string, data []byte) error

	// Load returns the record stored under key. Returns ErrNotFound if there is none.
	Load(ctx context.Context, key string) ([]byte, error)

	// Delete removes the record stored under key. Deleting a missing record is not an error.
	Delete(ctx context.Context, key string) error
}

// StoreError reports a failure of the storage backend itself (access denied,
// unavailable keyring, I/O error).
type StoreError struct {
	Op  string // "save", "load", "delete"
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func wrap(op, key string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &StoreError{Op: op, Key: key, Err: err}
}

func validateKey(key string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	return nil
}
