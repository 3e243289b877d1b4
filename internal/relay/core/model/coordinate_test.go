package model

import (
	"errors"
	"testing"
	"time"
)

func TestNewCoordinate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		lat     float64
		lon     float64
		at      time.Time
		wantErr bool
	}{
		{"valid", 10.0261, 76.3125, now, false},
		{"lat north pole", 90, 0, now, false},
		{"lat south pole", -90, 0, now, false},
		{"lon antimeridian", 0, 180, now, false},
		{"lon negative antimeridian", 0, -180, now, false},
		{"lat too large", 90.0001, 0, now, true},
		{"lat too small", -91, 0, now, true},
		{"lon too large", 0, 180.5, now, true},
		{"lon too small", 0, -181, now, true},
		{"zero timestamp", 10, 76, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCoordinate(tt.lat, tt.lon, tt.at)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewCoordinate(%v, %v) succeeded, want error", tt.lat, tt.lon)
				}
				if !errors.Is(err, ErrInvalidCoordinate) {
					t.Errorf("error %v is not ErrInvalidCoordinate", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewCoordinate(%v, %v) failed: %v", tt.lat, tt.lon, err)
			}
			if c.Latitude != tt.lat || c.Longitude != tt.lon || !c.CapturedAt.Equal(tt.at) {
				t.Errorf("got %+v, want {%v %v %v}", c, tt.lat, tt.lon, tt.at)
			}
		})
	}
}
