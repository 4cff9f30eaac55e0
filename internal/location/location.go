// Package location abstracts the device capabilities the branch resolution
// flow depends on: runtime permission, position fixes and the settings deep link.
package location

import (
	"context"
	"errors"
)

var (
	// ErrTimeout means no fix arrived within the allotted time.
	ErrTimeout = errors.New("location: position fix timed out")
	// ErrUnavailable means the device cannot produce a fix (hardware or service off).
	ErrUnavailable = errors.New("location: position unavailable")
	// ErrCancelled means the user dismissed the fix or the enable prompt.
	ErrCancelled = errors.New("location: request cancelled")
)

// PermissionStatus is the outcome of a runtime permission check or request.
type PermissionStatus string

const (
	PermissionGranted       PermissionStatus = "granted"
	PermissionDenied        PermissionStatus = "denied"
	PermissionNeverAskAgain PermissionStatus = "never_ask_again"
)

// Coordinates is a WGS84 position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// PermissionProvider checks and requests the runtime location permission.
// Platforms without runtime permissions report granted.
type PermissionProvider interface {
	Check(ctx context.Context) (PermissionStatus, error)
	Request(ctx context.Context) (PermissionStatus, error)
}

// LocationProvider reads device location.
type LocationProvider interface {
	// EnsureServiceEnabled prompts the user to turn on location services when
	// they are off. It returns false if the user declined.
	EnsureServiceEnabled(ctx context.Context) (bool, error)
	// CurrentPosition acquires a single high-accuracy fix.
	CurrentPosition(ctx context.Context) (Coordinates, error)
}

// SettingsLauncher opens the OS settings screen. Fire-and-forget.
type SettingsLauncher interface {
	OpenSettings(ctx context.Context) error
}
