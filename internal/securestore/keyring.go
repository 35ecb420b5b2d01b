package securestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore provides OS-native secure storage for records.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
// Each key becomes a separate keyring item under the same service name.
type KeyringStore struct {
	service string
}

// Compile-time check to ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the OS-native credential storage
// using the given service identifier.
func NewKeyringStore(service string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}

	return &KeyringStore{
		service: service,
	}, nil
}

// Load returns the record from the system keyring. Returns ErrNotFound if missing.
func (k *KeyringStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	encoded, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("load", key, err)
	}

	// Keyring items are strings; records are stored base64-encoded
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, wrap("load", key, fmt.Errorf("decoding keyring item: %w", err))
	}
	return data, nil
}

// Save persists the record to the system keyring, overwriting any existing value.
func (k *KeyringStore) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	return wrap("save", key, keyring.Set(k.service, key, base64.StdEncoding.EncodeToString(data)))
}

// Delete removes the record from the system keyring.
func (k *KeyringStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	err := keyring.Delete(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return wrap("delete", key, err)
}
