package kvstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories lets the same contract tests run against every implementation.
func storeFactories(t *testing.T) map[string]func(t *testing.T) KeyValueStore {
	t.Helper()
	return map[string]func(t *testing.T) KeyValueStore{
		"memory": func(t *testing.T) KeyValueStore {
			t.Helper()
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) KeyValueStore {
			t.Helper()
			store, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
			require.NoError(t, err, "failed to open sqlite store")
			return store
		},
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer func() { _ = store.Close() }()

			require.NoError(t, store.Put("read_alert_ids", []string{"ALERT-1", "ALERT-2"}), "put failed")

			var ids []string
			found, err := store.Get("read_alert_ids", &ids)
			require.NoError(t, err, "get failed")
			assert.True(t, found, "expected key present")
			assert.Equal(t, []string{"ALERT-1", "ALERT-2"}, ids, "expected stored ids back")
		})
	}
}

func TestGetMissingKey(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer func() { _ = store.Close() }()

			var dest string
			found, err := store.Get("absent", &dest)
			require.NoError(t, err, "get failed")
			assert.False(t, found, "expected key absent")
		})
	}
}

func TestPutOverwrites(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer func() { _ = store.Close() }()

			require.NoError(t, store.Put("access_token", "first"), "first put failed")
			require.NoError(t, store.Put("access_token", "second"), "second put failed")

			var token string
			found, err := store.Get("access_token", &token)
			require.NoError(t, err, "get failed")
			assert.True(t, found, "expected key present")
			assert.Equal(t, "second", token, "expected latest value")
		})
	}
}

func TestDelete(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer func() { _ = store.Close() }()

			require.NoError(t, store.Put("refresh_token", "tok"), "put failed")
			require.NoError(t, store.Delete("refresh_token"), "delete failed")

			var token string
			found, err := store.Get("refresh_token", &token)
			require.NoError(t, err, "get failed")
			assert.False(t, found, "expected key gone after delete")

			// Deleting again is not an error
			assert.NoError(t, store.Delete("refresh_token"), "repeat delete should succeed")
		})
	}
}

func TestCorruptedValueTreatedAsAbsent(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer func() { _ = store.Close() }()

			// Store a string where the reader expects a slice
			require.NoError(t, store.Put("read_alert_ids", "not-a-list"), "put failed")

			var ids []string
			found, err := store.Get("read_alert_ids", &ids)
			require.NoError(t, err, "get failed")
			assert.False(t, found, "expected type-mismatched value treated as absent")
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := OpenSQLite(path)
	require.NoError(t, err, "failed to open store")
	require.NoError(t, store.Put("wildlife_user", map[string]string{"username": "jane"}), "put failed")
	require.NoError(t, store.Close(), "close failed")

	reopened, err := OpenSQLite(path)
	require.NoError(t, err, "failed to reopen store")
	defer func() { _ = reopened.Close() }()

	var user map[string]string
	found, err := reopened.Get("wildlife_user", &user)
	require.NoError(t, err, "get failed")
	assert.True(t, found, "expected value to survive reopen")
	assert.Equal(t, "jane", user["username"], "expected persisted username")
}
