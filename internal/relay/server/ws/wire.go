package ws

import (
	"time"

	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/model"
)

// fixMessage is one inbound position report on a publisher socket.
type fixMessage struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	CapturedAt time.Time `json:"capturedAt"`
}

// ackMessage answers every fixMessage so publishers can detect rejections.
type ackMessage struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// controlMessage is one inbound command on a subscriber socket.
type controlMessage struct {
	Action    string `json:"action"` // "subscribe" or "unsubscribe"
	VehicleID string `json:"vehicleId"`
}

const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

// eventMessage is one outbound event on a subscriber socket. Location fields
// are present only for location events.
type eventMessage struct {
	Type       string     `json:"type"`
	VehicleID  string     `json:"vehicleId"`
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	CapturedAt *time.Time `json:"capturedAt,omitempty"`
}

func encodeEvent(ev model.Event) eventMessage {
	msg := eventMessage{
		Type:      string(ev.Type),
		VehicleID: ev.VehicleID,
	}
	if ev.Fix != nil {
		msg.Latitude = &ev.Fix.Latitude
		msg.Longitude = &ev.Fix.Longitude
		msg.CapturedAt = &ev.Fix.CapturedAt
	}
	return msg
}
