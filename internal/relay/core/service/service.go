// Package service assembles the relay core: it owns connection identity and
// lifecycle, enforces the single-publisher rule per vehicle, and wires the
// registry, coalescer and broker together into one event flow.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Alanbenny123/bustrackingnew/internal/pkg/metrics"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/broker"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/coalesce"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/model"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/registry"
	"github.com/Alanbenny123/bustrackingnew/pkg/log"
)

// Config carries the core tuning knobs.
type Config struct {
	StalenessWindow      time.Duration
	CoalesceInterval     time.Duration
	OfflineEvictionAfter time.Duration

	Logger log.Logger
}

type role string

const (
	rolePublisher  role = "publisher"
	roleSubscriber role = "subscriber"
)

// connection is one tracked transport connection. A synthetic publisher has
// no socket of its own: it stands in for a vehicle feeding fixes through the
// message broker, so the single-publisher rule covers both paths.
type connection struct {
	id        string
	role      role
	vehicleID string
	synthetic bool
	state     *lifecycle
}

// Service is the relay core facade the transport servers talk to.
type Service struct {
	registry  *registry.Registry
	coalescer *coalesce.Coalescer
	broker    *broker.Broker

	mu         sync.Mutex
	conns      map[string]*connection
	publishers map[string]string // vehicle id -> publisher connection id

	logger log.Logger
}

// New builds the core and wires the event flow: registry transitions fan out
// directly, coalesced location updates fan out at interval boundaries, and
// the registry consults the broker's watcher counts for eviction.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	s := &Service{
		conns:      make(map[string]*connection),
		publishers: make(map[string]string),
		logger:     logger.WithName("service"),
	}

	s.registry = registry.New(registry.Config{
		StalenessWindow:      cfg.StalenessWindow,
		OfflineEvictionAfter: cfg.OfflineEvictionAfter,
		Logger:               logger,
	})
	s.broker = broker.New(s.registry, logger)
	s.coalescer = coalesce.New(cfg.CoalesceInterval, func(vehicleID string, fix model.Coordinate) {
		s.broker.Broadcast(model.LocationEvent(vehicleID, fix))
	}, logger)

	s.registry.OnEvent(s.onTransition)
	s.registry.WatcherCounter(s.broker.WatcherCount)
	return s
}

// Run drives the periodic workers (staleness sweep, coalescer flush) until
// the context is done.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.registry.RunSweeper(ctx) })
	g.Go(func() error { return s.coalescer.Run(ctx) })
	return g.Wait()
}

// OpenPublisher binds a new publisher connection to the vehicle id. At most
// one publisher per vehicle may be live; a second attempt is rejected with
// ErrPublisherConflict and the existing binding is untouched.
func (s *Service) OpenPublisher(ctx context.Context, vehicleID string) (string, error) {
	s.mu.Lock()
	if other, ok := s.publishers[vehicleID]; ok {
		s.mu.Unlock()
		s.logger.Warn("rejected duplicate publisher", "vehicleID", vehicleID, "existingConnID", other)
		return "", fmt.Errorf("vehicle %q: %w", vehicleID, model.ErrPublisherConflict)
	}
	conn := s.newConnection(rolePublisher, vehicleID, false)
	s.publishers[vehicleID] = conn.id
	s.conns[conn.id] = conn
	s.mu.Unlock()

	if err := conn.state.establish(ctx); err != nil {
		return "", err
	}
	// The vehicle is known from the moment its publisher connects, even
	// before the first fix arrives.
	s.registry.Ensure(vehicleID, time.Now())
	s.logger.Info("publisher bound", "vehicleID", vehicleID, "connID", conn.id)
	return conn.id, nil
}

// OpenSubscriber registers a new subscriber connection with its outbound sink.
func (s *Service) OpenSubscriber(ctx context.Context, sink broker.Sink) (string, error) {
	conn := s.newConnection(roleSubscriber, "", false)
	s.mu.Lock()
	s.conns[conn.id] = conn
	s.mu.Unlock()

	if err := conn.state.establish(ctx); err != nil {
		return "", err
	}
	s.broker.Register(conn.id, sink)
	s.logger.Debug("subscriber opened", "connID", conn.id)
	return conn.id, nil
}

// RecordFix validates and applies a position report from a publisher
// connection. An invalid coordinate is rejected without affecting vehicle
// state or the connection.
func (s *Service) RecordFix(connID string, lat, lon float64, capturedAt time.Time) error {
	fix, err := model.NewCoordinate(lat, lon, capturedAt)
	if err != nil {
		metrics.FixesRejected.WithLabelValues("invalid_coordinate").Inc()
		return err
	}

	s.mu.Lock()
	conn, ok := s.conns[connID]
	s.mu.Unlock()
	if !ok || conn.role != rolePublisher {
		return model.ErrConnectionClosed
	}

	s.apply(conn.vehicleID, fix)
	return nil
}

// IngestFix applies a position report arriving through the message broker.
// The first fix for an unbound vehicle binds a synthetic publisher; a vehicle
// bound to a live socket publisher rejects broker fixes so the two feeds
// cannot interleave.
func (s *Service) IngestFix(ctx context.Context, vehicleID string, lat, lon float64, capturedAt time.Time) error {
	fix, err := model.NewCoordinate(lat, lon, capturedAt)
	if err != nil {
		metrics.FixesRejected.WithLabelValues("invalid_coordinate").Inc()
		return err
	}

	s.mu.Lock()
	connID, bound := s.publishers[vehicleID]
	if bound {
		conn := s.conns[connID]
		if conn == nil || !conn.synthetic {
			s.mu.Unlock()
			metrics.FixesRejected.WithLabelValues("conflict").Inc()
			return fmt.Errorf("vehicle %q: %w", vehicleID, model.ErrPublisherConflict)
		}
		s.mu.Unlock()
	} else {
		conn := s.newConnection(rolePublisher, vehicleID, true)
		s.publishers[vehicleID] = conn.id
		s.conns[conn.id] = conn
		s.mu.Unlock()
		if err := conn.state.establish(ctx); err != nil {
			return err
		}
		s.logger.Info("bound broker-fed publisher", "vehicleID", vehicleID, "connID", conn.id)
	}

	s.apply(vehicleID, fix)
	return nil
}

// Subscribe adds a watched vehicle id to a subscriber connection. The broker
// delivers the current snapshot as part of the call.
func (s *Service) Subscribe(connID, vehicleID string) error {
	s.mu.Lock()
	conn, ok := s.conns[connID]
	s.mu.Unlock()
	if !ok || conn.role != roleSubscriber {
		return model.ErrConnectionClosed
	}
	return s.broker.Subscribe(connID, vehicleID)
}

// Unsubscribe removes a watched vehicle id from a subscriber connection.
func (s *Service) Unsubscribe(connID, vehicleID string) {
	s.broker.Unsubscribe(connID, vehicleID)
}

// CloseConnection tears a connection down. For a publisher the vehicle goes
// offline immediately rather than waiting for the staleness sweep; for a
// subscriber every subscription is dropped. Closing an unknown or
// already-closed connection is a no-op.
func (s *Service) CloseConnection(ctx context.Context, connID string) {
	s.mu.Lock()
	conn, ok := s.conns[connID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.conns, connID)
	if conn.role == rolePublisher && s.publishers[conn.vehicleID] == connID {
		delete(s.publishers, conn.vehicleID)
	}
	s.mu.Unlock()

	if err := conn.state.shutdown(ctx); err != nil {
		s.logger.Debug("connection already closed", "connID", connID)
		return
	}
	s.logger.Info("connection closed", "connID", connID, "role", string(conn.role))
}

// Snapshot returns the current state of one vehicle.
func (s *Service) Snapshot(vehicleID string) (model.VehicleState, error) {
	return s.registry.Snapshot(vehicleID)
}

// ListVehicles returns the known vehicle ids.
func (s *Service) ListVehicles() []string {
	return s.registry.ListKnown()
}

// SnapshotAll returns the current state of every known vehicle.
func (s *Service) SnapshotAll() []model.VehicleState {
	return s.registry.SnapshotAll()
}

// apply routes an accepted fix into the coalescer. Fixes the registry
// discards (regressed capturedAt) never reach fan-out.
func (s *Service) apply(vehicleID string, fix model.Coordinate) {
	if s.registry.RecordFix(vehicleID, fix, time.Now()) {
		s.coalescer.Offer(vehicleID, fix)
	}
}

// onTransition receives registry liveness events. Online/offline bypass the
// coalescer so liveness is never delayed behind a batching interval; going
// offline also drops any pending coalesced fix so a stale position cannot
// trail the offline event.
func (s *Service) onTransition(ev model.Event) {
	if ev.Type == model.EventOffline {
		s.coalescer.Forget(ev.VehicleID)
		s.releaseSyntheticPublisher(ev.VehicleID)
	}
	s.broker.Broadcast(ev)
}

// releaseSyntheticPublisher unbinds a broker-fed publisher once its vehicle
// goes offline, so the vehicle can later rebind through either feed.
func (s *Service) releaseSyntheticPublisher(vehicleID string) {
	s.mu.Lock()
	connID, ok := s.publishers[vehicleID]
	if !ok {
		s.mu.Unlock()
		return
	}
	conn := s.conns[connID]
	if conn == nil || !conn.synthetic {
		s.mu.Unlock()
		return
	}
	delete(s.publishers, vehicleID)
	delete(s.conns, connID)
	s.mu.Unlock()

	_ = conn.state.shutdown(context.Background())
	s.logger.Debug("released broker-fed publisher", "vehicleID", vehicleID, "connID", connID)
}

func (s *Service) newConnection(r role, vehicleID string, synthetic bool) *connection {
	conn := &connection{
		id:        uuid.NewString(),
		role:      r,
		vehicleID: vehicleID,
		synthetic: synthetic,
	}
	conn.state = newLifecycle(func() {
		switch r {
		case rolePublisher:
			s.registry.MarkOffline(vehicleID, time.Now())
		case roleSubscriber:
			s.broker.DropConnection(conn.id)
		}
	})
	return conn
}
