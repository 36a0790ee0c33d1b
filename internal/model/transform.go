package model

import (
	"strconv"
	"strings"
	"time"
)

// Presentation defaults for telemetry the backend does not report yet.
const (
	defaultBattery        = 85
	defaultSignalStrength = 90
)

// animalTypeAliases maps backend animal type spellings (including known
// misspellings produced by the classifier labels) to normalized names.
// Unknown types fall through to a lowercased passthrough so new classes
// are never silently dropped.
var animalTypeAliases = map[string]string{
	"Bear":      "bear",
	"Bison":     "bison",
	"Bision":    "bison",
	"Elephant":  "elephant",
	"Human":     "human",
	"Leopard":   "leopard",
	"Leopord":   "leopard",
	"Lion":      "lion",
	"Tiger":     "tiger",
	"Boar":      "boar",
	"Wild Boar": "boar",
}

var dangerAnimals = map[string]bool{
	"tiger":   true,
	"lion":    true,
	"leopard": true,
	"human":   true,
}

var warningAnimals = map[string]bool{
	"elephant": true,
	"bear":     true,
	"boar":     true,
}

// NormalizeAnimalType resolves backend spelling variants to the normalized
// lowercase animal type.
func NormalizeAnimalType(backendType string) string {
	if normalized, ok := animalTypeAliases[backendType]; ok {
		return normalized
	}
	return strings.ToLower(backendType)
}

// RiskLevelFor classifies a normalized animal type. It is a pure function of
// its input; the classification table is fixed.
func RiskLevelFor(animalType string) RiskLevel {
	switch {
	case dangerAnimals[animalType]:
		return RiskDanger
	case warningAnimals[animalType]:
		return RiskWarning
	default:
		return RiskSafe
	}
}

// TransformDevice maps a backend device record into the normalized Device
// shape, applying presentation defaults for telemetry the backend does not
// supply and redacting the location when the backend marks it non-visible.
func TransformDevice(raw *RawDevice) Device {
	device := Device{
		ID:             raw.DeviceID,
		Name:           raw.DeviceID,
		Status:         DeviceOnline,
		Battery:        defaultBattery,
		SignalStrength: defaultSignalStrength,
		Owner:          raw.OwnedByUsername,
	}

	if raw.Status == string(DeviceOffline) {
		device.Status = DeviceOffline
	}
	if raw.Battery != nil {
		device.Battery = *raw.Battery
	}
	if raw.SignalStrength != nil {
		device.SignalStrength = *raw.SignalStrength
	}

	if raw.Location != nil && raw.Location.Visible {
		device.Location = &GeoPoint{Lat: raw.Location.Lat, Lng: raw.Location.Lon}
	} else {
		device.LocationHidden = true
	}

	if ts, err := time.Parse(time.RFC3339, raw.UpdatedAt); err == nil {
		device.LastSeen = ts
	} else {
		device.LastSeen = time.Now().UTC().Truncate(time.Second)
	}

	return device
}

// TransformDetection maps a backend detection record into the normalized
// Detection shape. The function is idempotent and side-effect-free so it can
// safely run on every poll cycle.
func TransformDetection(raw *RawDetection) Detection {
	animalType := NormalizeAnimalType(raw.AnimalType)

	detection := Detection{
		ID:                "DET-" + strconv.Itoa(raw.ID),
		CameraID:          raw.DeviceID,
		AnimalType:        animalType,
		AnimalName:        raw.AnimalType,
		Confidence:        raw.Confidence,
		Timestamp:         raw.Timestamp,
		RiskLevel:         RiskLevelFor(animalType),
		ImageURL:          raw.ImageURL,
		AnnotatedImageURL: raw.AnnotatedImageURL,
	}

	if raw.DeviceLocation != nil && !raw.DeviceLocation.Hidden && raw.DeviceLocation.Lat != 0 {
		detection.Location = &GeoPoint{Lat: raw.DeviceLocation.Lat, Lng: raw.DeviceLocation.Lon}
	}
	if raw.DeviceLocation != nil && raw.DeviceLocation.Hidden {
		detection.LocationHidden = true
	}

	return detection
}

// NormalizeUser maps the backend profile record into the normalized
// UserProfile. The role is derived here exactly once; consumers compute
// ranger/public checks from it instead of re-reading user_type.
func NormalizeUser(raw *RawUser) UserProfile {
	user := UserProfile{
		ID:           raw.ID,
		Username:     raw.Username,
		Email:        raw.Email,
		FirstName:    raw.FirstName,
		LastName:     raw.LastName,
		MobileNumber: raw.MobileNumber,
		Role:         RolePublic,
	}
	if raw.UserType == string(RoleRanger) {
		user.Role = RoleRanger
	}
	if raw.HomeLat != nil && raw.HomeLon != nil {
		user.HomeLocation = &GeoPoint{Lat: *raw.HomeLat, Lng: *raw.HomeLon}
	}
	return user
}
