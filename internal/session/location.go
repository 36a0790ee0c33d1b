package session

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/wildwatch/wildwatch-go/internal/errors"
	"github.com/wildwatch/wildwatch-go/internal/model"
)

// LocationProvider is the capability interface for acquiring the operator's
// position. Implementations must honor the context deadline; the session
// store converts every failure into "no location" rather than surfacing it.
type LocationProvider interface {
	CurrentLocation(ctx context.Context) (*model.GeoPoint, error)
}

// StaticLocation always reports a fixed position, typically from config.
type StaticLocation struct {
	Point model.GeoPoint
}

// CurrentLocation returns the configured point.
func (s *StaticLocation) CurrentLocation(ctx context.Context) (*model.GeoPoint, error) {
	point := s.Point
	return &point, nil
}

// defaultGeoEndpoint resolves the caller's position from their public IP.
const defaultGeoEndpoint = "http://ip-api.com/json/"

// IPLocation estimates position from the public IP address. This is the
// headless stand-in for the browser geolocation API; accuracy is city-level.
type IPLocation struct {
	// Endpoint overrides the lookup service URL (used by tests)
	Endpoint string
	// HTTPClient overrides the default client
	HTTPClient *http.Client
}

type ipGeoResponse struct {
	Status string  `json:"status"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
}

// CurrentLocation queries the IP geolocation service.
func (p *IPLocation) CurrentLocation(ctx context.Context) (*model.GeoPoint, error) {
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = defaultGeoEndpoint
	}
	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, errors.New(err).
			Component("session").
			Category(errors.CategoryGeolocation).
			Build()
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("session").
			Category(errors.CategoryGeolocation).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("geolocation lookup returned status %d", resp.StatusCode).
			Component("session").
			Category(errors.CategoryGeolocation).
			Build()
	}

	var geo ipGeoResponse
	if err := json.NewDecoder(resp.Body).Decode(&geo); err != nil {
		return nil, errors.New(err).
			Component("session").
			Category(errors.CategoryGeolocation).
			Build()
	}
	if geo.Status != "" && geo.Status != "success" {
		return nil, errors.Newf("geolocation lookup failed: %s", geo.Status).
			Component("session").
			Category(errors.CategoryGeolocation).
			Build()
	}

	return &model.GeoPoint{Lat: geo.Lat, Lng: geo.Lon}, nil
}
