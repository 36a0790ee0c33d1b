// Package kvstore provides the durable client-side key-value state used to
// survive application restarts: the token pair, session identity, last known
// location, and the read/resolved alert id sets. Each key has exactly one
// owning store; no two components write the same key.
package kvstore

import (
	"encoding/json"
	"sync"

	"github.com/wildwatch/wildwatch-go/internal/errors"
)

// KeyValueStore is the capability interface stores persist through. Values
// are JSON-encoded; Get reports whether the key was present. A value that
// fails to decode is treated as absent so corrupted state never blocks
// startup, mirroring how the dashboard recovers from bad stored JSON.
type KeyValueStore interface {
	// Get decodes the value for key into dest, reporting presence
	Get(key string, dest any) (bool, error)
	// Put stores the JSON encoding of value under key
	Put(key string, value any) error
	// Delete removes the key; deleting an absent key is not an error
	Delete(key string) error
	// Close releases the underlying resources
	Close() error
}

// Well-known storage keys. Listed here so ownership is auditable in one place.
const (
	KeyAccessToken      = "access_token"       // owned by api.TokenStore
	KeyRefreshToken     = "refresh_token"      // owned by api.TokenStore
	KeyUser             = "wildlife_user"      // owned by session.Store
	KeyUserLocation     = "user_location"      // owned by session.Store
	KeyReadAlertIDs     = "read_alert_ids"     // owned by alerts.Store
	KeyResolvedAlertIDs = "resolved_alert_ids" // owned by alerts.Store
)

// MemoryStore provides a thread-safe in-memory KeyValueStore for tests and
// ephemeral sessions.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

// Get decodes the stored value for key into dest.
func (s *MemoryStore) Get(key string, dest any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// Corrupted value, treat as absent
		return false, nil
	}
	return true, nil
}

// Put stores the JSON encoding of value under key.
func (s *MemoryStore) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.New(err).
			Component("kvstore").
			Category(errors.CategoryStorage).
			Context("key", key).
			Build()
	}
	s.mu.Lock()
	s.values[key] = raw
	s.mu.Unlock()
	return nil
}

// Delete removes the key.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
