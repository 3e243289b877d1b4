package model

import "errors"

var (
	// ErrInvalidCoordinate marks an out-of-range latitude/longitude. The fix
	// is rejected at the boundary; the connection stays open.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrPublisherConflict marks a second publisher trying to bind an
	// already-bound vehicle id. The offending connection is closed.
	ErrPublisherConflict = errors.New("vehicle already has an active publisher")

	// ErrVehicleNotFound marks a snapshot request for an unknown vehicle id.
	ErrVehicleNotFound = errors.New("vehicle not found")

	// ErrConnectionClosed marks an operation on a connection that has already
	// reached its terminal state.
	ErrConnectionClosed = errors.New("connection closed")
)
