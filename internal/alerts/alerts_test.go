package alerts

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildwatch/wildwatch-go/internal/kvstore"
	"github.com/wildwatch/wildwatch-go/internal/model"
)

func detection(id int, animalType string) model.Detection {
	return model.Detection{
		ID:         "DET-" + strconv.Itoa(id),
		CameraID:   "CAM-001",
		AnimalType: animalType,
		AnimalName: titleCase(animalType),
		Confidence: 0.87,
		Timestamp:  time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
		RiskLevel:  model.RiskLevelFor(animalType),
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

func storedIDs(t *testing.T, storage kvstore.KeyValueStore, key string) []string {
	t.Helper()
	var ids []string
	found, err := storage.Get(key, &ids)
	require.NoError(t, err, "failed to read id set")
	if !found {
		return nil
	}
	return ids
}

func TestRebuildFiltersToWarningAndDanger(t *testing.T) {
	store := NewStore(kvstore.NewMemoryStore(), nil)

	store.Rebuild([]model.Detection{
		detection(1, "tiger"),    // danger
		detection(2, "deer"),     // safe, excluded
		detection(3, "elephant"), // warning
	})

	alerts := store.Alerts()
	require.Len(t, alerts, 2, "expected only warning and danger detections")
	assert.Equal(t, "ALERT-DET-1", alerts[0].ID, "expected deterministic id")
	assert.Equal(t, TypeIntrusion, alerts[0].Type, "expected intrusion for danger")
	assert.Equal(t, TypeWildlife, alerts[1].Type, "expected wildlife for warning")
	assert.Equal(t, "Tiger Detected - High Risk!", alerts[0].Title, "expected danger title")
	assert.Equal(t, "Elephant Spotted", alerts[1].Title, "expected warning title")
	assert.Equal(t, "Tiger detected by CAM-001 with 87% confidence.", alerts[0].Message, "expected message wording")
}

func TestRebuildPreservesDetectionOrder(t *testing.T) {
	store := NewStore(kvstore.NewMemoryStore(), nil)

	store.Rebuild([]model.Detection{
		detection(5, "bear"),
		detection(2, "lion"),
		detection(9, "boar"),
	})

	alerts := store.Alerts()
	require.Len(t, alerts, 3, "expected three alerts")
	assert.Equal(t, "ALERT-DET-5", alerts[0].ID, "expected detection order kept")
	assert.Equal(t, "ALERT-DET-2", alerts[1].ID, "expected detection order kept")
	assert.Equal(t, "ALERT-DET-9", alerts[2].ID, "expected detection order kept")
}

func TestFlagsSurviveRefetch(t *testing.T) {
	store := NewStore(kvstore.NewMemoryStore(), nil)
	snapshot := []model.Detection{detection(42, "tiger")}

	store.Rebuild(snapshot)
	store.MarkAsRead("ALERT-DET-42")
	store.ResolveAlert("ALERT-DET-42", "ranger_jane")

	// Same detection id arrives again in a fresh snapshot
	store.Rebuild(snapshot)

	alerts := store.Alerts()
	require.Len(t, alerts, 1, "expected one alert")
	assert.True(t, alerts[0].IsRead, "expected read flag preserved")
	assert.True(t, alerts[0].IsResolved, "expected resolved flag preserved")
	assert.Equal(t, "ranger_jane", alerts[0].ResolvedBy, "expected resolver preserved")
	require.NotNil(t, alerts[0].ResolvedAt, "expected resolution timestamp preserved")
}

func TestFlagsRecoveredFromDurableSets(t *testing.T) {
	storage := kvstore.NewMemoryStore()
	require.NoError(t, storage.Put(kvstore.KeyReadAlertIDs, []string{"ALERT-DET-42"}), "failed to seed read set")
	require.NoError(t, storage.Put(kvstore.KeyResolvedAlertIDs, []string{"ALERT-DET-42"}), "failed to seed resolved set")

	// Fresh store simulates a restart: only the durable sets survive
	store := NewStore(storage, nil)
	store.Rebuild([]model.Detection{detection(42, "tiger"), detection(7, "lion")})

	alerts := store.Alerts()
	require.Len(t, alerts, 2, "expected two alerts")
	assert.True(t, alerts[0].IsRead, "expected read recovered from durable set")
	assert.True(t, alerts[0].IsResolved, "expected resolved recovered from durable set")
	assert.Empty(t, alerts[0].ResolvedBy, "resolver is not durable")
	assert.False(t, alerts[1].IsRead, "expected default unread")
	assert.False(t, alerts[1].IsResolved, "expected default unresolved")
}

func TestMarkAsReadUpdatesCountsAndDurableSet(t *testing.T) {
	storage := kvstore.NewMemoryStore()
	store := NewStore(storage, nil)
	store.Rebuild([]model.Detection{detection(42, "tiger"), detection(7, "lion")})

	require.Equal(t, 2, store.UnreadCount(), "expected both unread")
	store.MarkAsRead("ALERT-DET-42")

	assert.Equal(t, 1, store.UnreadCount(), "expected unread count decreased")
	assert.Contains(t, storedIDs(t, storage, kvstore.KeyReadAlertIDs), "ALERT-DET-42", "expected durable read set updated")
}

func TestMarkAllAsReadReplacesReadSet(t *testing.T) {
	storage := kvstore.NewMemoryStore()
	store := NewStore(storage, nil)
	store.Rebuild([]model.Detection{detection(1, "tiger"), detection(2, "lion"), detection(3, "bear")})

	store.MarkAllAsRead()

	assert.Zero(t, store.UnreadCount(), "expected everything read")
	ids := storedIDs(t, storage, kvstore.KeyReadAlertIDs)
	assert.ElementsMatch(t, []string{"ALERT-DET-1", "ALERT-DET-2", "ALERT-DET-3"}, ids,
		"expected durable read set replaced with exactly the current ids")
}

func TestConcurrentReadAndResolveOperations(t *testing.T) {
	storage := kvstore.NewMemoryStore()
	store := NewStore(storage, nil)

	snapshot := make([]model.Detection, 0, 20)
	for i := 1; i <= 20; i++ {
		snapshot = append(snapshot, detection(i, "tiger"))
	}
	store.Rebuild(snapshot)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			store.MarkAsRead("ALERT-DET-" + strconv.Itoa(id))
		}(i)
	}
	wg.Add(3)
	go func() {
		defer wg.Done()
		store.MarkAllAsRead()
	}()
	go func() {
		defer wg.Done()
		store.Rebuild(snapshot)
	}()
	go func() {
		defer wg.Done()
		store.ResolveAlert("ALERT-DET-1", "ranger_jane")
	}()
	wg.Wait()

	// Every id is marked individually, so no interleaving with the wholesale
	// replacement or the rebuild can leave an unread alert behind.
	assert.Zero(t, store.UnreadCount(), "expected every alert read regardless of interleaving")
	assert.Len(t, storedIDs(t, storage, kvstore.KeyReadAlertIDs), 20, "expected durable read set complete")

	alerts := store.Alerts()
	require.Len(t, alerts, 20, "expected full alert list")
	assert.True(t, alerts[0].IsResolved, "expected resolution to survive the racing rebuild")
	assert.Equal(t, "ranger_jane", alerts[0].ResolvedBy, "expected resolver retained")
}

func TestResolveAlertStampsResolution(t *testing.T) {
	store := NewStore(kvstore.NewMemoryStore(), nil)
	store.Rebuild([]model.Detection{detection(42, "tiger")})

	require.Equal(t, 1, store.UnresolvedCount(), "expected one unresolved")
	before := time.Now().Add(-time.Second)
	store.ResolveAlert("ALERT-DET-42", "ranger_jane")

	alerts := store.Alerts()
	assert.True(t, alerts[0].IsResolved, "expected resolved")
	assert.Equal(t, "ranger_jane", alerts[0].ResolvedBy, "expected resolver recorded")
	require.NotNil(t, alerts[0].ResolvedAt, "expected resolution timestamp")
	assert.True(t, alerts[0].ResolvedAt.After(before), "expected recent timestamp")
	assert.Zero(t, store.UnresolvedCount(), "expected unresolved count decreased")
}

func TestResolveDefaultsResolver(t *testing.T) {
	store := NewStore(kvstore.NewMemoryStore(), nil)
	store.Rebuild([]model.Detection{detection(1, "tiger")})

	store.ResolveAlert("ALERT-DET-1", "")

	assert.Equal(t, "Current User", store.Alerts()[0].ResolvedBy, "expected default resolver")
}

func TestEmptySnapshotPrunesEverything(t *testing.T) {
	storage := kvstore.NewMemoryStore()
	store := NewStore(storage, nil)
	store.Rebuild([]model.Detection{detection(42, "tiger")})
	store.MarkAsRead("ALERT-DET-42")
	store.ResolveAlert("ALERT-DET-42", "ranger_jane")

	store.Rebuild(nil)

	assert.Empty(t, store.Alerts(), "expected empty alert list")
	assert.NotContains(t, storedIDs(t, storage, kvstore.KeyReadAlertIDs), "ALERT-DET-42", "expected read set pruned")
	assert.NotContains(t, storedIDs(t, storage, kvstore.KeyResolvedAlertIDs), "ALERT-DET-42", "expected resolved set pruned")
}

func TestPruningKeepsLiveIDs(t *testing.T) {
	storage := kvstore.NewMemoryStore()
	store := NewStore(storage, nil)
	store.Rebuild([]model.Detection{detection(1, "tiger"), detection(2, "lion")})
	store.MarkAsRead("ALERT-DET-1")
	store.MarkAsRead("ALERT-DET-2")

	// Detection 2 disappears; 1 remains
	store.Rebuild([]model.Detection{detection(1, "tiger")})

	ids := storedIDs(t, storage, kvstore.KeyReadAlertIDs)
	assert.ElementsMatch(t, []string{"ALERT-DET-1"}, ids, "expected only the live id kept")
}

func TestCorruptedDurableSetStartsEmpty(t *testing.T) {
	storage := kvstore.NewMemoryStore()
	require.NoError(t, storage.Put(kvstore.KeyReadAlertIDs, "not-a-list"), "failed to seed corrupt value")

	store := NewStore(storage, nil)
	store.Rebuild([]model.Detection{detection(1, "tiger")})

	assert.False(t, store.Alerts()[0].IsRead, "expected empty set after corrupt load")
}

func TestRunConsumesSubscription(t *testing.T) {
	store := NewStore(kvstore.NewMemoryStore(), nil)
	sub := make(chan []model.Detection, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		store.Run(ctx, sub)
	}()

	sub <- []model.Detection{detection(1, "tiger")}
	assert.Eventually(t, func() bool { return len(store.Alerts()) == 1 }, 2*time.Second, 10*time.Millisecond,
		"expected snapshot consumed")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to exit on cancel")
	}
}

func TestNotificationsExpireAndDismiss(t *testing.T) {
	store := NewStore(kvstore.NewMemoryStore(), nil)

	first := store.AddNotification("success", "Alert resolved")
	second := store.AddNotification("error", "Failed to refresh data")
	require.Len(t, store.Notifications(), 2, "expected both toasts visible")
	assert.NotEqual(t, first.ID, second.ID, "expected unique ids")

	store.DismissNotification(first.ID)
	remaining := store.Notifications()
	require.Len(t, remaining, 1, "expected one toast after dismissal")
	assert.Equal(t, second.ID, remaining[0].ID, "expected the other toast kept")
}

func TestNotificationsOrderedOldestFirst(t *testing.T) {
	store := NewStore(kvstore.NewMemoryStore(), nil)

	first := store.AddNotification("info", "one")
	time.Sleep(2 * time.Millisecond)
	second := store.AddNotification("info", "two")

	notifications := store.Notifications()
	require.Len(t, notifications, 2, "expected two toasts")
	assert.Equal(t, first.ID, notifications[0].ID, "expected oldest first")
	assert.Equal(t, second.ID, notifications[1].ID, "expected newest last")
}
