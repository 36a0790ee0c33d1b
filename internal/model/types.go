// Package model defines the normalized frontend-facing shapes for devices,
// detections, and users, together with the pure transform layer that maps
// backend wire records into them.
package model

import "time"

// Role is the backend-assigned user type controlling data visibility.
type Role string

const (
	// RoleRanger sees all devices and unredacted locations
	RoleRanger Role = "ranger"
	// RolePublic sees only owned devices; locations may be redacted
	RolePublic Role = "public"
)

// RiskLevel classifies a detection by the danger its animal type poses.
type RiskLevel string

const (
	RiskSafe    RiskLevel = "safe"
	RiskWarning RiskLevel = "warning"
	RiskDanger  RiskLevel = "danger"
)

// DeviceStatus is the presentation status of a camera device.
type DeviceStatus string

const (
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
)

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// UserProfile is the normalized identity of the authenticated user.
type UserProfile struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	MobileNumber string    `json:"mobileNumber,omitempty"`
	Role         Role      `json:"role"`
	HomeLocation *GeoPoint `json:"homeLocation,omitempty"`
}

// DisplayName returns the user's full name, falling back to the username.
func (u *UserProfile) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

// Device is the normalized camera device shape consumed by the view layer.
type Device struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Status         DeviceStatus `json:"status"`
	Battery        int          `json:"battery"`        // 0-100
	SignalStrength int          `json:"signalStrength"` // 0-100
	Location       *GeoPoint    `json:"location"`
	LocationHidden bool         `json:"locationHidden"`
	LastSeen       time.Time    `json:"lastSeen"`
	Owner          string       `json:"owner,omitempty"`
}

// Detection is the normalized, immutable animal sighting record. Detections
// are never mutated locally; each poll cycle replaces them wholesale.
type Detection struct {
	ID                string    `json:"id"`
	CameraID          string    `json:"cameraId"`
	AnimalType        string    `json:"animalType"` // normalized, lowercase
	AnimalName        string    `json:"animalName"` // backend display name
	Confidence        float64   `json:"confidence"` // 0..1
	Timestamp         time.Time `json:"timestamp"`
	RiskLevel         RiskLevel `json:"riskLevel"`
	Location          *GeoPoint `json:"location"`
	LocationHidden    bool      `json:"locationHidden"`
	ImageURL          string    `json:"imageUrl"`
	AnnotatedImageURL string    `json:"annotatedImageUrl"`
}

// AccessLevel is the backend-assigned scope returned with the detection list.
// The client stores it verbatim for UI gating and never recomputes it.
type AccessLevel string

const (
	AccessRanger      AccessLevel = "ranger"
	AccessDeviceOwner AccessLevel = "device_owner"
	AccessPublic      AccessLevel = "public"
)

// --- Backend wire records ---

// RawLocation is the backend's device location payload.
type RawLocation struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Visible bool    `json:"visible"`
}

// RawDevice is a device record as returned by GET /device/ and /user/devices/.
type RawDevice struct {
	DeviceID        string       `json:"device_id"`
	Location        *RawLocation `json:"location"`
	UpdatedAt       string       `json:"updated_at"`
	OwnedByUsername string       `json:"owned_by_username"`
	// Telemetry is not reported by the backend yet; pointers distinguish
	// absent values from zero once it is.
	Status         string `json:"status,omitempty"`
	Battery        *int   `json:"battery,omitempty"`
	SignalStrength *int   `json:"signal_strength,omitempty"`
}

// RawDeviceLocation is the per-detection location payload, carrying the
// backend's redaction flag instead of the device visibility flag.
type RawDeviceLocation struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Hidden bool    `json:"hidden"`
}

// RawDetection is a detection record as returned by GET /images/.
type RawDetection struct {
	ID                int                `json:"id"`
	DeviceID          string             `json:"device_id"`
	AnimalType        string             `json:"animal_type"`
	Confidence        float64            `json:"confidence"`
	Timestamp         time.Time          `json:"timestamp"`
	DeviceLocation    *RawDeviceLocation `json:"device_location"`
	ImageURL          string             `json:"image_url"`
	AnnotatedImageURL string             `json:"annotated_image_url"`
}

// RawUser is the backend profile record.
type RawUser struct {
	ID           int      `json:"id"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	MobileNumber string   `json:"mobile_number"`
	UserType     string   `json:"user_type"`
	HomeLat      *float64 `json:"home_lat"`
	HomeLon      *float64 `json:"home_lon"`
}
