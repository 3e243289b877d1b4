package model

import "time"

// Status is the liveness of a vehicle as tracked by the registry.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// VehicleState is a point-in-time view of a vehicle held by the registry.
// An entry is created (offline, no fix) the first time any publisher or
// subscriber references the id.
type VehicleState struct {
	VehicleID string `json:"vehicleId"`

	// LastFix is the most recent accepted fix, nil until the first one.
	LastFix *Coordinate `json:"lastFix,omitempty"`

	// LastSeenAt is when the last fix was accepted; zero until the first one.
	// Monotonically non-decreasing while the vehicle is online.
	LastSeenAt time.Time `json:"lastSeenAt,omitempty"`

	Status Status `json:"status"`
}
