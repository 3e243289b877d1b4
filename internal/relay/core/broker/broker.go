// Package broker maps subscriber connections to the vehicle ids they watch
// and fans coalesced updates out to the interested subset. Delivery never
// blocks on network I/O: sinks are expected to buffer, and a sink that cannot
// accept an event is treated as failed and torn down in isolation.
package broker

import (
	"sync"
	"time"

	"github.com/Alanbenny123/bustrackingnew/internal/pkg/metrics"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/model"
	"github.com/Alanbenny123/bustrackingnew/pkg/log"
)

// Sink is the outbound side of a subscriber connection. Send must not block;
// it returns an error when the transport is gone or the buffer is full. Close
// tears the transport down.
type Sink interface {
	Send(ev model.Event) error
	Close()
}

// RegistryView is the read-side of the vehicle registry the broker needs for
// join consistency.
type RegistryView interface {
	Ensure(vehicleID string, now time.Time)
	Snapshot(vehicleID string) (model.VehicleState, error)
}

// Broker is the subscription fan-out hub.
//
// Lock ordering: the broker never calls into the registry while holding its
// own lock (the registry is allowed to query WatcherCount under registry
// locks).
type Broker struct {
	mu     sync.RWMutex
	conns  map[string]*subscriber
	topics map[string]map[string]*subscriber

	registry RegistryView
	logger   log.Logger
}

type subscriber struct {
	id   string
	sink Sink

	mu sync.Mutex
	// topics maps a watched vehicle id to the capturedAt of the last location
	// update delivered for it, guarding against regressions.
	topics map[string]time.Time
}

// New creates a Broker backed by the given registry view.
func New(registry RegistryView, logger log.Logger) *Broker {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Broker{
		conns:    make(map[string]*subscriber),
		topics:   make(map[string]map[string]*subscriber),
		registry: registry,
		logger:   logger.WithName("broker"),
	}
}

// Register adds a subscriber connection with its outbound sink. Connection
// ids are assigned by the lifecycle manager; registering one twice is a
// programming error.
func (b *Broker) Register(connID string, sink Sink) {
	b.mu.Lock()
	if _, ok := b.conns[connID]; ok {
		b.mu.Unlock()
		panic("broker: connection id registered twice: " + connID)
	}
	b.conns[connID] = &subscriber{
		id:     connID,
		sink:   sink,
		topics: make(map[string]time.Time),
	}
	b.mu.Unlock()

	metrics.Subscribers.Inc()
	b.logger.Debug("subscriber registered", "connID", connID)
}

// Subscribe registers interest in a vehicle id and immediately sends the
// current snapshot so new joiners see state without waiting for the next
// coalesced tick. Unknown vehicle ids are not an error: a placeholder offline
// entry is created.
func (b *Broker) Subscribe(connID, vehicleID string) error {
	b.mu.RLock()
	sub, ok := b.conns[connID]
	b.mu.RUnlock()
	if !ok {
		return model.ErrConnectionClosed
	}

	b.registry.Ensure(vehicleID, time.Now())
	snap, err := b.registry.Snapshot(vehicleID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if _, ok := b.conns[connID]; !ok {
		b.mu.Unlock()
		return model.ErrConnectionClosed
	}
	sub.mu.Lock()
	if _, ok := sub.topics[vehicleID]; !ok {
		sub.topics[vehicleID] = time.Time{}
	}
	sub.mu.Unlock()
	conns := b.topics[vehicleID]
	if conns == nil {
		conns = make(map[string]*subscriber)
		b.topics[vehicleID] = conns
	}
	conns[connID] = sub
	b.mu.Unlock()

	// Join consistency: the subscriber learns both position and liveness
	// right away. The regression guard in deliver keeps this safe against a
	// concurrent broadcast racing ahead of the snapshot.
	if snap.LastFix != nil {
		if err := sub.deliver(model.LocationEvent(vehicleID, *snap.LastFix)); err != nil {
			b.fail(sub)
			return nil
		}
	}
	if snap.Status == model.StatusOffline {
		if err := sub.deliver(model.OfflineEvent(vehicleID)); err != nil {
			b.fail(sub)
		}
	}
	return nil
}

// Unsubscribe removes interest in a vehicle id.
func (b *Broker) Unsubscribe(connID, vehicleID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.conns[connID]
	if !ok {
		return
	}
	sub.mu.Lock()
	delete(sub.topics, vehicleID)
	sub.mu.Unlock()

	if conns, ok := b.topics[vehicleID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(b.topics, vehicleID)
		}
	}
}

// Broadcast delivers an event to every subscriber of its vehicle id. Delivery
// order across subscribers is unspecified; a failure for one subscriber is
// isolated and triggers that subscriber's teardown only.
func (b *Broker) Broadcast(ev model.Event) {
	b.mu.RLock()
	conns := b.topics[ev.VehicleID]
	subs := make([]*subscriber, 0, len(conns))
	for _, sub := range conns {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	var failed []*subscriber
	for _, sub := range subs {
		if err := sub.deliver(ev); err != nil {
			failed = append(failed, sub)
		}
	}
	for _, sub := range failed {
		b.fail(sub)
	}
}

// DropConnection removes all subscriptions for the connection. Cost is
// proportional to that connection's subscriptions only.
func (b *Broker) DropConnection(connID string) {
	b.mu.Lock()
	sub, ok := b.conns[connID]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.conns, connID)
	sub.mu.Lock()
	for vehicleID := range sub.topics {
		if conns, ok := b.topics[vehicleID]; ok {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(b.topics, vehicleID)
			}
		}
	}
	sub.topics = make(map[string]time.Time)
	sub.mu.Unlock()
	b.mu.Unlock()

	metrics.Subscribers.Dec()
	b.logger.Debug("subscriber dropped", "connID", connID)
}

// WatcherCount reports how many subscriber connections currently watch the
// vehicle id. Consulted by registry eviction.
func (b *Broker) WatcherCount(vehicleID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[vehicleID])
}

// fail tears down a subscriber after a delivery failure.
func (b *Broker) fail(sub *subscriber) {
	metrics.DeliveryFailures.Inc()
	b.logger.Warn("delivery failed, dropping subscriber", "connID", sub.id)
	b.DropConnection(sub.id)
	sub.sink.Close()
}

// deliver sends one event, skipping location updates that would regress the
// last delivered capturedAt for that vehicle on this subscriber.
func (s *subscriber) deliver(ev model.Event) error {
	s.mu.Lock()
	last, watching := s.topics[ev.VehicleID]
	if !watching {
		s.mu.Unlock()
		return nil
	}
	if ev.Type == model.EventLocation {
		if ev.Fix.CapturedAt.Before(last) {
			s.mu.Unlock()
			return nil
		}
		s.topics[ev.VehicleID] = ev.Fix.CapturedAt
	}
	s.mu.Unlock()

	if err := s.sink.Send(ev); err != nil {
		return err
	}
	metrics.EventsDelivered.WithLabelValues(string(ev.Type)).Inc()
	return nil
}
