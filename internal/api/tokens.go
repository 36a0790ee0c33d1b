package api

import (
	"sync"

	"github.com/wildwatch/wildwatch-go/internal/kvstore"
)

// TokenPair is the JWT pair issued by the backend. Tokens are opaque to the
// client.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenStore owns the persisted token pair. It is the only writer of the
// access/refresh storage keys. An in-memory copy avoids a storage read on
// every request; the mutex keeps refresh-and-retry races out.
type TokenStore struct {
	mu      sync.RWMutex
	store   kvstore.KeyValueStore
	access  string
	refresh string
	loaded  bool
}

// NewTokenStore creates a token store backed by the given key-value store.
func NewTokenStore(store kvstore.KeyValueStore) *TokenStore {
	return &TokenStore{store: store}
}

// load reads persisted tokens once, on first access.
func (t *TokenStore) load() {
	if t.loaded {
		return
	}
	t.loaded = true
	var access, refresh string
	if found, err := t.store.Get(kvstore.KeyAccessToken, &access); err == nil && found {
		t.access = access
	}
	if found, err := t.store.Get(kvstore.KeyRefreshToken, &refresh); err == nil && found {
		t.refresh = refresh
	}
}

// Access returns the current access token, or empty when unauthenticated.
func (t *TokenStore) Access() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.load()
	return t.access
}

// Refresh returns the current refresh token, or empty when unauthenticated.
func (t *TokenStore) Refresh() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.load()
	return t.refresh
}

// Set persists a new token pair. An empty refresh keeps the existing one,
// matching the refresh endpoint's optional rotation.
func (t *TokenStore) Set(access, refresh string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.load()

	t.access = access
	if err := t.store.Put(kvstore.KeyAccessToken, access); err != nil {
		return err
	}
	if refresh != "" {
		t.refresh = refresh
		if err := t.store.Put(kvstore.KeyRefreshToken, refresh); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes both tokens from memory and storage.
func (t *TokenStore) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loaded = true
	t.access = ""
	t.refresh = ""
	_ = t.store.Delete(kvstore.KeyAccessToken)
	_ = t.store.Delete(kvstore.KeyRefreshToken)
}

// HasTokens reports whether a token pair is present.
func (t *TokenStore) HasTokens() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.load()
	return t.access != "" && t.refresh != ""
}
