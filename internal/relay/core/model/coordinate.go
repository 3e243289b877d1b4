package model

import (
	"fmt"
	"time"
)

// Coordinate is a single geographic fix reported by a vehicle. It is a value
// type and never mutated after construction.
type Coordinate struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	CapturedAt time.Time `json:"capturedAt"`
}

// NewCoordinate validates the input ranges and returns the fix. Out-of-range
// values are rejected with ErrInvalidCoordinate and never stored.
func NewCoordinate(lat, lon float64, capturedAt time.Time) (Coordinate, error) {
	if lat < -90 || lat > 90 {
		return Coordinate{}, fmt.Errorf("latitude %v out of range [-90,90]: %w", lat, ErrInvalidCoordinate)
	}
	if lon < -180 || lon > 180 {
		return Coordinate{}, fmt.Errorf("longitude %v out of range [-180,180]: %w", lon, ErrInvalidCoordinate)
	}
	if capturedAt.IsZero() {
		return Coordinate{}, fmt.Errorf("capturedAt is required: %w", ErrInvalidCoordinate)
	}
	return Coordinate{Latitude: lat, Longitude: lon, CapturedAt: capturedAt}, nil
}
