package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the relay's own prometheus registry, served by the admin HTTP
// server at /metrics.
var Registry = prometheus.NewRegistry()

var (
	// FixesAccepted counts position reports accepted by the vehicle registry.
	FixesAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_fixes_accepted_total",
			Help: "Total number of position fixes accepted by the registry.",
		},
	)

	// FixesRejected counts rejected position reports by reason.
	FixesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_fixes_rejected_total",
			Help: "Total number of position fixes rejected at the boundary.",
		},
		[]string{"reason"}, // invalid_coordinate, stale, conflict
	)

	// EventsDelivered counts events delivered to subscribers by type.
	EventsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_delivered_total",
			Help: "Total number of events delivered to subscriber connections.",
		},
		[]string{"type"}, // location, online, offline
	)

	// DeliveryFailures counts per-subscriber delivery failures. Each failure
	// tears down exactly one subscriber.
	DeliveryFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_delivery_failures_total",
			Help: "Total number of failed deliveries to subscriber connections.",
		},
	)

	// OnlineVehicles tracks the number of vehicles currently online.
	OnlineVehicles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_online_vehicles",
			Help: "Number of vehicles currently marked online.",
		},
	)

	// Subscribers tracks the number of registered subscriber connections.
	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_subscriber_connections",
			Help: "Number of currently registered subscriber connections.",
		},
	)
)

func init() {
	Registry.MustRegister(
		FixesAccepted,
		FixesRejected,
		EventsDelivered,
		DeliveryFailures,
		OnlineVehicles,
		Subscribers,
	)
}
