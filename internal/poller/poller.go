// Package poller keeps the camera and detection state fresh. It fetches both
// collections on a fixed interval while a session exists and broadcasts each
// new detection snapshot to subscribers.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wildwatch/wildwatch-go/internal/api"
	"github.com/wildwatch/wildwatch-go/internal/logging"
	"github.com/wildwatch/wildwatch-go/internal/model"
	"github.com/wildwatch/wildwatch-go/internal/session"
)

// DefaultInterval is the refresh cadence when none is configured.
const DefaultInterval = 30 * time.Second

// DefaultChannelBufferSize is the subscription channel depth. A subscriber
// that falls further behind misses snapshots rather than blocking the loop.
const DefaultChannelBufferSize = 16

// subscriber pairs a delivery channel with its cancellation context.
type subscriber struct {
	ch     chan []model.Detection
	ctx    context.Context
	cancel context.CancelFunc
}

// Store is the polling data store. All methods are safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	client   *api.Client
	session  *session.Store
	logger   *slog.Logger
	interval time.Duration

	cameras           []model.Device
	detections        []model.Detection
	accessLevel       model.AccessLevel
	ownedDevicesCount int
	isLoadingData     bool
	lastError         string

	subscribersMu sync.Mutex
	subscribers   []*subscriber
	subCtx        context.Context
	subCancel     context.CancelFunc

	stopChan chan struct{}
	doneChan chan struct{}
	running  bool
}

// Option configures the polling store.
type Option func(*Store)

// WithInterval overrides the refresh cadence.
func WithInterval(interval time.Duration) Option {
	return func(s *Store) { s.interval = interval }
}

// NewStore creates a polling store bound to a session. Polling does not begin
// until Start is called.
func NewStore(client *api.Client, sess *session.Store, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logging.ForService("poller")
	}
	subCtx, subCancel := context.WithCancel(context.Background())
	s := &Store{
		client:    client,
		session:   sess,
		logger:    logger,
		interval:  DefaultInterval,
		subCtx:    subCtx,
		subCancel: subCancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the polling loop: an immediate fetch, then one per interval.
// Calling Start on a running store is a no-op.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	stopChan, doneChan := s.stopChan, s.doneChan
	s.mu.Unlock()

	s.logger.Info("starting data polling", "interval", s.interval)
	go s.poll(ctx, stopChan, doneChan)
}

// poll is the refresh loop. It exits when stopChan closes or ctx is done.
func (s *Store) poll(ctx context.Context, stopChan <-chan struct{}, doneChan chan<- struct{}) {
	defer close(doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial fetch before the first tick
	s.refresh(ctx, true)

	for {
		select {
		case <-ticker.C:
			s.refresh(ctx, false)
		case <-stopChan:
			s.logger.Info("stopping data polling")
			return
		case <-ctx.Done():
			s.logger.Info("stopping data polling", "reason", ctx.Err())
			return
		}
	}
}

// Stop tears the loop down and waits for it to exit, then cancels all
// subscriptions. Safe to call on a stopped store.
func (s *Store) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	doneChan := s.doneChan
	s.mu.Unlock()

	<-doneChan
	s.subCancel()
}

// RefreshData runs one fetch cycle on demand, clearing any prior error first.
func (s *Store) RefreshData(ctx context.Context) {
	s.mu.Lock()
	s.lastError = ""
	s.mu.Unlock()
	s.refresh(ctx, true)
}

// refresh fetches devices and detections concurrently. Each side updates its
// own slice; a failed fetch keeps the last known good data and records a
// user-facing error instead.
func (s *Store) refresh(ctx context.Context, trackLoading bool) {
	// Session destruction does not stop the loop; this guard turns every
	// subsequent cycle into a no-op so no request ever carries stale tokens.
	// The owning scope remains responsible for Stop.
	if !s.session.IsAuthenticated() {
		return
	}

	if trackLoading {
		s.mu.Lock()
		s.isLoadingData = true
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			s.isLoadingData = false
			s.mu.Unlock()
		}()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.fetchDevices(ctx)
	}()

	var replaced []model.Detection
	go func() {
		defer wg.Done()
		replaced = s.fetchDetections(ctx)
	}()
	wg.Wait()

	if replaced != nil {
		s.broadcast(replaced)
	}
}

// fetchDevices refreshes the camera list. Rangers see every device; other
// roles see only the devices they own.
func (s *Store) fetchDevices(ctx context.Context) {
	var resp *api.DevicesResponse
	var err error
	if s.session.IsRanger() {
		resp, err = s.client.GetDevices(ctx)
	} else {
		resp, err = s.client.GetMyDevices(ctx)
	}
	if err != nil {
		s.logger.Warn("device fetch failed", "error", err)
		s.setError("Failed to fetch devices")
		return
	}
	if resp.Devices == nil {
		return
	}

	cameras := make([]model.Device, 0, len(resp.Devices))
	for i := range resp.Devices {
		cameras = append(cameras, model.TransformDevice(&resp.Devices[i]))
	}

	s.mu.Lock()
	s.cameras = cameras
	s.mu.Unlock()
}

// fetchDetections refreshes the detection list and the backend-assigned
// access metadata. It returns the new snapshot when the list was replaced,
// nil otherwise.
func (s *Store) fetchDetections(ctx context.Context) []model.Detection {
	resp, err := s.client.GetDetections(ctx, nil)
	if err != nil {
		s.logger.Warn("detection fetch failed", "error", err)
		s.setError("Failed to fetch detections")
		return nil
	}
	if resp.Images == nil {
		return nil
	}

	detections := make([]model.Detection, 0, len(resp.Images))
	for i := range resp.Images {
		detections = append(detections, model.TransformDetection(&resp.Images[i]))
	}

	s.mu.Lock()
	s.detections = detections
	s.accessLevel = resp.AccessLevel
	s.ownedDevicesCount = resp.OwnedDevicesCount
	s.mu.Unlock()

	return detections
}

func (s *Store) setError(message string) {
	s.mu.Lock()
	s.lastError = message
	s.mu.Unlock()
}

// Subscribe registers for detection snapshots, one per cycle in which the
// detection list was replaced. The returned context is cancelled when the
// subscription ends; subscribers must not close the channel.
func (s *Store) Subscribe() (<-chan []model.Detection, context.Context) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()

	ctx, cancel := context.WithCancel(s.subCtx)
	sub := &subscriber{
		ch:     make(chan []model.Detection, DefaultChannelBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	s.subscribers = append(s.subscribers, sub)
	return sub.ch, ctx
}

// Unsubscribe cancels the subscription owning ch.
func (s *Store) Unsubscribe(ch <-chan []model.Detection) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()

	for i, sub := range s.subscribers {
		if sub.ch == ch {
			sub.cancel()
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			break
		}
	}
}

// broadcast delivers a snapshot to every live subscriber. Cancelled
// subscribers are dropped; full channels are skipped rather than blocked on.
func (s *Store) broadcast(detections []model.Detection) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()

	active := s.subscribers[:0]
	for _, sub := range s.subscribers {
		select {
		case <-sub.ctx.Done():
			continue
		default:
		}
		active = append(active, sub)

		select {
		case sub.ch <- detections:
		default:
			s.logger.Debug("subscriber channel full, skipping snapshot")
		}
	}
	s.subscribers = active
}

// --- accessors ---

// Cameras returns the current camera snapshot.
func (s *Store) Cameras() []model.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cameras := make([]model.Device, len(s.cameras))
	copy(cameras, s.cameras)
	return cameras
}

// Detections returns the current detection snapshot.
func (s *Store) Detections() []model.Detection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	detections := make([]model.Detection, len(s.detections))
	copy(detections, s.detections)
	return detections
}

// AccessLevel returns the backend-assigned visibility scope, verbatim.
func (s *Store) AccessLevel() model.AccessLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessLevel
}

// OwnedDevicesCount returns the backend-reported owned device count.
func (s *Store) OwnedDevicesCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownedDevicesCount
}

// IsLoadingData reports whether a tracked fetch cycle is in flight.
func (s *Store) IsLoadingData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLoadingData
}

// LastError returns the most recent fetch error message, empty when the last
// cycle succeeded or no cycle has run.
func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}
