// Package alerts derives the actionable alert list from the detection stream.
// Alerts are rebuilt wholesale on every poll cycle; their read/resolved flags
// belong to the user and survive both rebuilds and restarts.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"

	"github.com/wildwatch/wildwatch-go/internal/kvstore"
	"github.com/wildwatch/wildwatch-go/internal/logging"
	"github.com/wildwatch/wildwatch-go/internal/model"
)

// NotificationTTL is how long a toast notification stays visible.
const NotificationTTL = 5 * time.Second

// Type categorizes an alert for the UI.
type Type string

const (
	// TypeIntrusion marks danger-level sightings
	TypeIntrusion Type = "intrusion"
	// TypeWildlife marks warning-level sightings
	TypeWildlife Type = "wildlife"
)

// Alert is one actionable entry derived from a warning- or danger-level
// detection. Identity is stable across refetches of the same detection.
type Alert struct {
	ID             string          `json:"id"`
	Type           Type            `json:"type"`
	Severity       model.RiskLevel `json:"severity"`
	Title          string          `json:"title"`
	Message        string          `json:"message"`
	CameraID       string          `json:"cameraId"`
	Timestamp      time.Time       `json:"timestamp"`
	IsRead         bool            `json:"isRead"`
	IsResolved     bool            `json:"isResolved"`
	ResolvedBy     string          `json:"resolvedBy,omitempty"`
	ResolvedAt     *time.Time      `json:"resolvedAt,omitempty"`
	Location       *model.GeoPoint `json:"location"`
	LocationHidden bool            `json:"locationHidden"`
	ImageURL       string          `json:"imageUrl"`
	AnimalType     string          `json:"animalType"`
	AnimalName     string          `json:"animalName"`
	Confidence     float64         `json:"confidence"`
}

// Notification is a transient toast entry. It is never persisted and
// disappears on its own after NotificationTTL.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the alert derivation store. All methods are safe for concurrent
// use; every read-modify-persist sequence runs under a single mutex hold.
type Store struct {
	mu sync.Mutex

	storage kvstore.KeyValueStore
	logger  *slog.Logger

	alerts      []Alert
	readIDs     map[string]struct{}
	resolvedIDs map[string]struct{}

	toasts *cache.Cache
}

// NewStore creates an alert store, recovering the durable read/resolved id
// sets from storage. Corrupted or missing sets start empty.
func NewStore(storage kvstore.KeyValueStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.ForService("alerts")
	}
	s := &Store{
		storage:     storage,
		logger:      logger,
		readIDs:     loadIDSet(storage, kvstore.KeyReadAlertIDs),
		resolvedIDs: loadIDSet(storage, kvstore.KeyResolvedAlertIDs),
		toasts:      cache.New(NotificationTTL, time.Minute),
	}
	return s
}

// loadIDSet reads a persisted id list, treating any failure as empty.
func loadIDSet(storage kvstore.KeyValueStore, key string) map[string]struct{} {
	set := make(map[string]struct{})
	var ids []string
	if found, err := storage.Get(key, &ids); err != nil || !found {
		return set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Run consumes detection snapshots until ctx ends. Pass the context returned
// by the poller's Subscribe so the loop exits when the subscription does.
func (s *Store) Run(ctx context.Context, sub <-chan []model.Detection) {
	for {
		select {
		case detections := <-sub:
			s.Rebuild(detections)
		case <-ctx.Done():
			return
		}
	}
}

// AlertIDFor returns the deterministic alert id for a detection.
func AlertIDFor(d *model.Detection) string {
	return "ALERT-" + d.ID
}

// Rebuild replaces the alert list from a detection snapshot. Flags are
// inherited from the prior in-memory alert when one exists, otherwise seeded
// from the durable sets; both durable sets are then pruned to the ids that
// still have a backing detection and persisted.
func (s *Store) Rebuild(detections []model.Detection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]*Alert, len(s.alerts))
	for i := range s.alerts {
		existing[s.alerts[i].ID] = &s.alerts[i]
	}

	rebuilt := make([]Alert, 0, len(detections))
	currentIDs := make(map[string]struct{}, len(detections))
	for i := range detections {
		d := &detections[i]
		if d.RiskLevel != model.RiskDanger && d.RiskLevel != model.RiskWarning {
			continue
		}

		alert := deriveAlert(d)
		if prev, ok := existing[alert.ID]; ok {
			alert.IsRead = prev.IsRead
			alert.IsResolved = prev.IsResolved
			alert.ResolvedBy = prev.ResolvedBy
			alert.ResolvedAt = prev.ResolvedAt
		} else {
			_, alert.IsRead = s.readIDs[alert.ID]
			_, alert.IsResolved = s.resolvedIDs[alert.ID]
		}

		rebuilt = append(rebuilt, alert)
		currentIDs[alert.ID] = struct{}{}
	}

	s.alerts = rebuilt
	s.pruneLocked(s.readIDs, currentIDs)
	s.pruneLocked(s.resolvedIDs, currentIDs)
	s.persistLocked()

	s.logger.Debug("alerts rebuilt",
		"detections", len(detections),
		"alerts", len(rebuilt))
}

// deriveAlert maps one detection to its alert shape, flags unset.
func deriveAlert(d *model.Detection) Alert {
	alert := Alert{
		ID:             AlertIDFor(d),
		Severity:       d.RiskLevel,
		CameraID:       d.CameraID,
		Timestamp:      d.Timestamp,
		Location:       d.Location,
		LocationHidden: d.LocationHidden,
		ImageURL:       d.ImageURL,
		AnimalType:     d.AnimalType,
		AnimalName:     d.AnimalName,
		Confidence:     d.Confidence,
	}

	if d.RiskLevel == model.RiskDanger {
		alert.Type = TypeIntrusion
		alert.Title = fmt.Sprintf("%s Detected - High Risk!", d.AnimalName)
	} else {
		alert.Type = TypeWildlife
		alert.Title = fmt.Sprintf("%s Spotted", d.AnimalName)
	}
	alert.Message = fmt.Sprintf("%s detected by %s with %d%% confidence.",
		d.AnimalName, d.CameraID, int(math.Round(d.Confidence*100)))

	return alert
}

// MarkAsRead flags one alert as read and records it durably. Unknown ids are
// still recorded so a racing rebuild cannot lose the action.
func (s *Store) MarkAsRead(alertID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		if s.alerts[i].ID == alertID {
			s.alerts[i].IsRead = true
			break
		}
	}
	s.readIDs[alertID] = struct{}{}
	s.persistLocked()
}

// MarkAllAsRead flags every current alert as read, replacing the durable
// read set wholesale with exactly the current alert ids.
func (s *Store) MarkAllAsRead() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readIDs = make(map[string]struct{}, len(s.alerts))
	for i := range s.alerts {
		s.alerts[i].IsRead = true
		s.readIDs[s.alerts[i].ID] = struct{}{}
	}
	s.persistLocked()
}

// ResolveAlert marks an alert resolved, stamping who and when. Resolution is
// one-way; there is no unresolve.
func (s *Store) ResolveAlert(alertID, resolvedBy string) {
	if resolvedBy == "" {
		resolvedBy = "Current User"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		if s.alerts[i].ID == alertID {
			now := time.Now().UTC()
			s.alerts[i].IsResolved = true
			s.alerts[i].ResolvedBy = resolvedBy
			s.alerts[i].ResolvedAt = &now
			break
		}
	}
	s.resolvedIDs[alertID] = struct{}{}
	s.persistLocked()
}

// Alerts returns a copy of the current alert list in detection order.
func (s *Store) Alerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	alerts := make([]Alert, len(s.alerts))
	copy(alerts, s.alerts)
	return alerts
}

// UnreadCount recomputes the number of unread alerts.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for i := range s.alerts {
		if !s.alerts[i].IsRead {
			count++
		}
	}
	return count
}

// UnresolvedCount recomputes the number of unresolved alerts.
func (s *Store) UnresolvedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for i := range s.alerts {
		if !s.alerts[i].IsResolved {
			count++
		}
	}
	return count
}

// AddNotification shows a toast. It expires on its own after NotificationTTL.
func (s *Store) AddNotification(notifType, message string) Notification {
	n := Notification{
		ID:        uuid.New().String(),
		Type:      notifType,
		Message:   message,
		Timestamp: time.Now(),
	}
	s.toasts.Set(n.ID, n, cache.DefaultExpiration)
	return n
}

// DismissNotification removes a toast before its expiry.
func (s *Store) DismissNotification(id string) {
	s.toasts.Delete(id)
}

// Notifications returns the live toasts, oldest first.
func (s *Store) Notifications() []Notification {
	items := s.toasts.Items()
	notifications := make([]Notification, 0, len(items))
	for _, item := range items {
		n, ok := item.Object.(Notification)
		if !ok {
			continue
		}
		notifications = append(notifications, n)
	}
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].Timestamp.Before(notifications[j].Timestamp)
	})
	return notifications
}

// pruneLocked drops ids whose backing detection is gone. Caller holds s.mu.
func (s *Store) pruneLocked(set, currentIDs map[string]struct{}) {
	for id := range set {
		if _, ok := currentIDs[id]; !ok {
			delete(set, id)
		}
	}
}

// persistLocked writes both durable sets. Caller holds s.mu.
func (s *Store) persistLocked() {
	if err := s.storage.Put(kvstore.KeyReadAlertIDs, sortedIDs(s.readIDs)); err != nil {
		s.logger.Warn("failed to persist read alert ids", "error", err)
	}
	if err := s.storage.Put(kvstore.KeyResolvedAlertIDs, sortedIDs(s.resolvedIDs)); err != nil {
		s.logger.Warn("failed to persist resolved alert ids", "error", err)
	}
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
