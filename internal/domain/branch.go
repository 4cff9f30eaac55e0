package domain

import "time"

// Branch is a fulfilment location with a coverage radius.
type Branch struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Address        string  `json:"address,omitempty"`
	Pincode        string  `json:"pincode,omitempty"`
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
	DistanceKm     float64 `json:"distance_km,omitempty"`
	IsWithinRadius *bool   `json:"is_within_radius,omitempty"`
}

// ServiceAvailable is true unless the branch explicitly reports that the
// location is outside its radius.
func (b *Branch) ServiceAvailable() bool {
	return b.IsWithinRadius == nil || *b.IsWithinRadius
}

// LocationStatus tracks the permission and device-capability state machine.
type LocationStatus string

const (
	LocationIdle        LocationStatus = "idle"
	LocationGranted     LocationStatus = "granted"
	LocationDenied      LocationStatus = "denied"
	LocationDisabled    LocationStatus = "disabled"
	LocationUnavailable LocationStatus = "unavailable"
)

// BranchCacheEntry is the persisted snapshot read once at startup.
type BranchCacheEntry struct {
	Branch    *Branch   `json:"branch"`
	IsManual  bool      `json:"is_manual"`
	Timestamp time.Time `json:"timestamp"`
	Pincode   string    `json:"pincode,omitempty"`
	IsDefault bool      `json:"is_default,omitempty"`
}
