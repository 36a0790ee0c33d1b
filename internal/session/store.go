// Package session owns the authenticated user's identity, role, and last
// known location. It gates the polling layer: data fetching starts only once
// a session exists and stops when it is destroyed.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wildwatch/wildwatch-go/internal/api"
	"github.com/wildwatch/wildwatch-go/internal/errors"
	"github.com/wildwatch/wildwatch-go/internal/kvstore"
	"github.com/wildwatch/wildwatch-go/internal/logging"
	"github.com/wildwatch/wildwatch-go/internal/model"
)

// DefaultLocationTimeout bounds a geolocation attempt. Expiry degrades to
// "no location", never an error.
const DefaultLocationTimeout = 10 * time.Second

// Store is the session store. All methods are safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	client   *api.Client
	storage  kvstore.KeyValueStore
	location LocationProvider
	logger   *slog.Logger

	locationTimeout time.Duration

	user            *model.UserProfile
	isLoading       bool
	userLocation    *model.GeoPoint
	locationLoading bool

	// Tracks the post-login background geolocation fetch so Close can join it
	wg sync.WaitGroup
}

// Option configures the session store.
type Option func(*Store)

// WithLocationTimeout overrides the geolocation timeout.
func WithLocationTimeout(timeout time.Duration) Option {
	return func(s *Store) { s.locationTimeout = timeout }
}

// NewStore creates a session store. The store starts in the loading state;
// consumers must not treat the session as decided until Initialize returns.
func NewStore(client *api.Client, storage kvstore.KeyValueStore, location LocationProvider, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logging.ForService("session")
	}
	s := &Store{
		client:          client,
		storage:         storage,
		location:        location,
		logger:          logger,
		locationTimeout: DefaultLocationTimeout,
		isLoading:       true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize restores a persisted session on cold start. A stored identity is
// only trusted after the token validates against the profile endpoint; any
// failure clears all stored identity and tokens and resolves to a clean
// unauthenticated state without surfacing an error.
func (s *Store) Initialize(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.isLoading = false
		s.mu.Unlock()
	}()

	var stored model.UserProfile
	found, err := s.storage.Get(kvstore.KeyUser, &stored)
	if err != nil || !found {
		return
	}

	if !s.client.Tokens().HasTokens() {
		// Identity without tokens is stale state from a failed logout
		s.clearIdentity()
		return
	}

	raw, err := s.client.GetProfile(ctx)
	if err != nil {
		// Silent: a failed validation on startup is a clean logged-out state
		s.logger.Debug("stored session validation failed", "error", err)
		s.clearIdentity()
		s.client.Tokens().Clear()
		return
	}

	user := model.NormalizeUser(raw)
	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	_ = s.storage.Put(kvstore.KeyUser, &user)

	s.restoreLocation()
	s.logger.Info("session restored", "username", user.Username, "role", user.Role)
}

// Login authenticates with a username or email and starts a non-blocking
// geolocation fetch on success.
func (s *Store) Login(ctx context.Context, identifier, password string) (model.Role, error) {
	resp, err := s.client.Login(ctx, identifier, password)
	if err != nil {
		s.logger.Warn("login failed", "error", errors.Message(err))
		return "", err
	}
	return s.establishSession(&resp.User), nil
}

// Signup registers a new account and starts a non-blocking geolocation fetch
// on success.
func (s *Store) Signup(ctx context.Context, payload *api.SignupPayload) (model.Role, error) {
	resp, err := s.client.Signup(ctx, payload)
	if err != nil {
		s.logger.Warn("signup failed", "error", errors.Message(err))
		return "", err
	}
	return s.establishSession(&resp.User), nil
}

// establishSession normalizes and persists the profile, then kicks off the
// background location fetch.
func (s *Store) establishSession(raw *model.RawUser) model.Role {
	user := model.NormalizeUser(raw)

	s.mu.Lock()
	s.user = &user
	s.isLoading = false
	s.mu.Unlock()
	_ = s.storage.Put(kvstore.KeyUser, &user)

	s.logger.Info("session established", "username", user.Username, "role", user.Role)

	// One-shot location fix; the session is usable before it resolves
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.FetchUserLocation(context.Background())
	}()

	return user.Role
}

// Logout invalidates the session server-side on a best-effort basis and
// unconditionally clears local identity, tokens, and cached location.
func (s *Store) Logout(ctx context.Context) {
	if err := s.client.Logout(ctx); err != nil {
		// Logged, never surfaced: local cleanup must always succeed
		s.logger.Warn("server-side logout failed", "error", errors.Message(err))
	}

	s.clearIdentity()
	s.mu.Lock()
	s.userLocation = nil
	s.mu.Unlock()
	_ = s.storage.Delete(kvstore.KeyUserLocation)

	s.logger.Info("session destroyed")
}

// FetchUserLocation acquires a one-shot position fix. It resolves to nil
// (never an error) when the provider is missing, denied, or timed out.
// Successful fixes are persisted so a restart keeps the last known position.
func (s *Store) FetchUserLocation(ctx context.Context) *model.GeoPoint {
	if s.location == nil {
		return nil
	}

	s.mu.Lock()
	s.locationLoading = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.locationLoading = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.locationTimeout)
	defer cancel()

	point, err := s.location.CurrentLocation(ctx)
	if err != nil || point == nil {
		s.logger.Debug("geolocation unavailable", "error", errors.Message(err))
		return nil
	}

	s.mu.Lock()
	s.userLocation = point
	s.mu.Unlock()
	_ = s.storage.Put(kvstore.KeyUserLocation, point)

	s.logger.Debug("location acquired", "lat", point.Lat, "lng", point.Lng)
	return point
}

// UpdateProfile merges changes into the in-memory and persisted profile
// without a network round trip. The authoritative server write is the
// caller's separate UpdateProfile API call.
func (s *Store) UpdateProfile(update *api.ProfileUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return
	}

	if update.FirstName != "" {
		s.user.FirstName = update.FirstName
	}
	if update.LastName != "" {
		s.user.LastName = update.LastName
	}
	if update.MobileNumber != "" {
		s.user.MobileNumber = update.MobileNumber
	}
	if update.HomeLat != nil && update.HomeLon != nil {
		s.user.HomeLocation = &model.GeoPoint{Lat: *update.HomeLat, Lng: *update.HomeLon}
	}

	_ = s.storage.Put(kvstore.KeyUser, s.user)
}

// Close waits for any in-flight background work.
func (s *Store) Close() {
	s.wg.Wait()
}

// --- accessors ---

// User returns a copy of the current profile, or nil when unauthenticated.
func (s *Store) User() *model.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	user := *s.user
	return &user
}

// IsAuthenticated reports whether a session exists. It is exactly
// "user is present", never tracked separately.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// IsLoading reports whether the cold-start restore is still in flight.
// Consumers must not render protected content while this is true.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLoading
}

// IsRanger reports whether the session user has the ranger role.
func (s *Store) IsRanger() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.Role == model.RoleRanger
}

// IsPublicUser reports whether the session user has the public role.
func (s *Store) IsPublicUser() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.Role == model.RolePublic
}

// UserLocation returns the last known position, or nil.
func (s *Store) UserLocation() *model.GeoPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userLocation == nil {
		return nil
	}
	point := *s.userLocation
	return &point
}

// LocationLoading reports whether a location fix is in flight.
func (s *Store) LocationLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locationLoading
}

// clearIdentity removes the user from memory and storage.
func (s *Store) clearIdentity() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	_ = s.storage.Delete(kvstore.KeyUser)
}

// restoreLocation loads the persisted last known position, if any.
func (s *Store) restoreLocation() {
	var point model.GeoPoint
	if found, err := s.storage.Get(kvstore.KeyUserLocation, &point); err == nil && found {
		s.mu.Lock()
		s.userLocation = &point
		s.mu.Unlock()
	}
}
