// Package credentials persists the OAuth credential and the account profile
// in a securestore.Store.
//
// Nothing is cached in memory: every read goes back to the store so that
// separate processes sharing it observe each other's writes.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/florianilch/ratemeter/internal/securestore"
)

// Record keys in the shared store.
const (
	KeyCredentials    = "credentials"
	KeyCachedRateData = "cached_rate_data"
	KeyUserInfo       = "user_info"
)

// Credential is the persisted OAuth token set.
// A zero ExpiresAt means the expiry is unknown and the token is treated as non-expiring.
type Credential struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	// ExpiresAt is in milliseconds since the Unix epoch.
	ExpiresAt int64 `json:"expiresAt,omitempty"`
}

// Expiry returns the expiry time and whether one is recorded.
func (c *Credential) Expiry() (time.Time, bool) {
	if c.ExpiresAt == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(c.ExpiresAt), true
}

// HasRefreshToken reports whether a silent refresh is possible.
func (c *Credential) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// ExpiresAtMillis converts t to the persisted representation. The zero time maps to 0.
func ExpiresAtMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// UserInfo holds account details shown next to the usage figures.
type UserInfo struct {
	Email            string    `json:"email,omitempty"`
	DisplayName      string    `json:"displayName,omitempty"`
	OrganizationName string    `json:"organizationName,omitempty"`
	OrganizationType string    `json:"organizationType,omitempty"`
	FetchedAt        time.Time `json:"fetchedAt"`
}

// Repository provides typed access to the credential and user info records.
type Repository struct {
	store securestore.Store
}

// NewRepository creates a Repository on top of store.
func NewRepository(store securestore.Store) (*Repository, error) {
	if store == nil {
		return nil, fmt.Errorf("missing store")
	}
	return &Repository{store: store}, nil
}

// SaveTokens overwrites the full credential record. Empty refreshToken and a
// zero expiresAt are persisted as absent.
func (r *Repository) SaveTokens(ctx context.Context, accessToken, refreshToken string, expiresAt time.Time) error {
	return r.Save(ctx, Credential{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    ExpiresAtMillis(expiresAt),
	})
}

// Save overwrites the full credential record.
func (r *Repository) Save(ctx context.Context, cred Credential) error {
	if cred.AccessToken == "" {
		return fmt.Errorf("access token cannot be empty")
	}
	return r.put(ctx, KeyCredentials, cred)
}

// Load returns the persisted credential, or nil if none is stored.
func (r *Repository) Load(ctx context.Context) (*Credential, error) {
	var cred Credential
	found, err := r.get(ctx, KeyCredentials, &cred)
	if err != nil || !found {
		return nil, err
	}
	if cred.AccessToken == "" {
		return nil, nil
	}
	return &cred, nil
}

// AccessToken returns the last persisted access token without any freshness check.
func (r *Repository) AccessToken(ctx context.Context) (string, bool) {
	cred, err := r.Load(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to load credentials", "error", err)
		return "", false
	}
	if cred == nil {
		return "", false
	}
	return cred.AccessToken, true
}

// HasCredentials reports whether a credential record exists.
func (r *Repository) HasCredentials(ctx context.Context) bool {
	_, ok := r.AccessToken(ctx)
	return ok
}

// Clear deletes the credential, cached rate data and user info records.
// Every delete is attempted even if an earlier one fails.
func (r *Repository) Clear(ctx context.Context) error {
	var errs []error
	for _, key := range []string{KeyCredentials, KeyCachedRateData, KeyUserInfo} {
		if err := r.store.Delete(ctx, key); err != nil {
			slog.ErrorContext(ctx, "failed to delete record", "key", key, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SaveUserInfo overwrites the user info record.
func (r *Repository) SaveUserInfo(ctx context.Context, info UserInfo) error {
	return r.put(ctx, KeyUserInfo, info)
}

// LoadUserInfo returns the persisted user info, or nil if none is stored.
func (r *Repository) LoadUserInfo(ctx context.Context) (*UserInfo, error) {
	var info UserInfo
	found, err := r.get(ctx, KeyUserInfo, &info)
	if err != nil || !found {
		return nil, err
	}
	return &info, nil
}

func (r *Repository) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := r.store.Save(ctx, key, data); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

func (r *Repository) get(ctx context.Context, key string, v any) (bool, error) {
	data, err := r.store.Load(ctx, key)
	if errors.Is(err, securestore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}
