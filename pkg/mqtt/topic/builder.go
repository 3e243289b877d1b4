package topic

import (
	"fmt"
	"strings"
)

// Constants defining the standard topic segments. These are the wire contract
// between vehicle devices and the relay; changing them breaks deployed
// publishers.
const (
	// SuffixTelemetry is the upstream position report topic (Vehicle -> Relay).
	// Structure: {root}/telemetry/{vehicleID}
	SuffixTelemetry = "telemetry"
)

// Builder constructs the MQTT topic strings used by the relay and its
// publishers from a shared root namespace (e.g. "fleet/v1").
type Builder struct {
	root string
}

// NewBuilder creates a Builder with the specified root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: root}
}

// Telemetry returns the topic a specific vehicle publishes its fixes to.
func (b *Builder) Telemetry(vehicleID string) string {
	return b.build(SuffixTelemetry, vehicleID)
}

// TelemetryWildcard returns the wildcard filter the relay subscribes to in
// order to receive fixes from every vehicle. Result: {root}/telemetry/+
func (b *Builder) TelemetryWildcard() string {
	return b.build(SuffixTelemetry, "+")
}

// VehicleID extracts the vehicle id from a concrete telemetry topic. It
// returns an empty string if the topic does not belong to this builder's
// namespace.
func (b *Builder) VehicleID(topic string) string {
	prefix := b.root + "/" + SuffixTelemetry + "/"
	if !strings.HasPrefix(topic, prefix) {
		return ""
	}
	id := strings.TrimPrefix(topic, prefix)
	if id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}

func (b *Builder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
