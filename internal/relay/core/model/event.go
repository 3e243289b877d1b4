package model

// EventType discriminates the messages fanned out to subscribers.
type EventType string

const (
	// EventLocation carries a coalesced position update.
	EventLocation EventType = "location"

	// EventOnline announces an offline->online transition.
	EventOnline EventType = "online"

	// EventOffline announces an online->offline transition.
	EventOffline EventType = "offline"
)

// Event is a single fan-out message for one vehicle. Fix is set only for
// location events.
type Event struct {
	Type      EventType
	VehicleID string
	Fix       *Coordinate
}

// LocationEvent builds a position update event.
func LocationEvent(vehicleID string, fix Coordinate) Event {
	return Event{Type: EventLocation, VehicleID: vehicleID, Fix: &fix}
}

// OnlineEvent builds an offline->online transition event.
func OnlineEvent(vehicleID string) Event {
	return Event{Type: EventOnline, VehicleID: vehicleID}
}

// OfflineEvent builds an online->offline transition event.
func OfflineEvent(vehicleID string) Event {
	return Event{Type: EventOffline, VehicleID: vehicleID}
}
