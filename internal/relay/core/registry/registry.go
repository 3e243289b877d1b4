// Package registry tracks known vehicles, their current fix and liveness.
// It owns the staleness/offline policy: a vehicle with no accepted fix within
// the staleness window is marked offline by the periodic sweep, which is the
// backstop for publishers that vanish without a clean close.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Alanbenny123/bustrackingnew/internal/pkg/metrics"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/model"
	"github.com/Alanbenny123/bustrackingnew/pkg/log"
)

// Config carries the registry tuning knobs.
type Config struct {
	// StalenessWindow is how long a vehicle may go without an accepted fix
	// before the sweep marks it offline.
	StalenessWindow time.Duration

	// OfflineEvictionAfter is how long an offline, unwatched entry is
	// retained before eviction. Zero disables eviction.
	OfflineEvictionAfter time.Duration

	Logger log.Logger
}

// Registry is the authoritative store of vehicle state. Mutable state is
// partitioned per vehicle (one mutex per entry); the registry-wide lock only
// guards map membership and the sweep.
//
// Lock ordering: the registry may call out to the watcher counter while
// holding its locks, so nothing reached from there may call back into the
// registry while holding its own locks.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	window     time.Duration
	evictAfter time.Duration

	emit     func(model.Event)
	watchers func(vehicleID string) int

	logger log.Logger
}

type entry struct {
	mu       sync.Mutex
	lastFix  *model.Coordinate
	lastSeen time.Time
	created  time.Time
	online   bool
}

// New creates a Registry. OnEvent and WatcherCounter must be wired before any
// traffic flows.
func New(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Registry{
		entries:    make(map[string]*entry),
		window:     cfg.StalenessWindow,
		evictAfter: cfg.OfflineEvictionAfter,
		emit:       func(model.Event) {},
		watchers:   func(string) int { return 0 },
		logger:     logger.WithName("registry"),
	}
}

// OnEvent registers the sink that receives online/offline transition events.
func (r *Registry) OnEvent(fn func(model.Event)) {
	r.emit = fn
}

// WatcherCounter registers the function reporting how many subscribers
// currently reference a vehicle id. Used by eviction.
func (r *Registry) WatcherCounter(fn func(vehicleID string) int) {
	r.watchers = fn
}

// Ensure creates a placeholder entry (offline, no fix) if the vehicle id is
// not yet known. A subscriber may legitimately arrive before any publisher.
func (r *Registry) Ensure(vehicleID string, now time.Time) {
	r.getOrCreate(vehicleID, now)
}

// RecordFix stores a validated fix for the vehicle and marks it online.
// Fixes whose capturedAt is older than the stored fix are discarded so that
// per-vehicle order never regresses downstream; the return value reports
// whether the fix became current. An offline->online transition emits a
// VehicleOnline event.
func (r *Registry) RecordFix(vehicleID string, fix model.Coordinate, now time.Time) bool {
	e := r.getOrCreate(vehicleID, now)

	e.mu.Lock()
	if e.lastFix != nil && fix.CapturedAt.Before(e.lastFix.CapturedAt) {
		e.mu.Unlock()
		metrics.FixesRejected.WithLabelValues("stale").Inc()
		r.logger.Debug("discarded regressed fix", "vehicleID", vehicleID, "capturedAt", fix.CapturedAt)
		return false
	}
	wasOffline := !e.online
	e.lastFix = &fix
	if now.After(e.lastSeen) {
		e.lastSeen = now
	}
	e.online = true
	e.mu.Unlock()

	metrics.FixesAccepted.Inc()
	if wasOffline {
		metrics.OnlineVehicles.Inc()
		r.logger.Info("vehicle online", "vehicleID", vehicleID)
		r.emit(model.OnlineEvent(vehicleID))
	}
	return true
}

// MarkOffline transitions the vehicle to offline. It is idempotent: exactly
// one VehicleOffline event is emitted per online->offline transition, and
// calls for unknown or already-offline vehicles do nothing.
func (r *Registry) MarkOffline(vehicleID string, now time.Time) {
	r.mu.RLock()
	e, ok := r.entries[vehicleID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	if !e.online {
		e.mu.Unlock()
		return
	}
	e.online = false
	e.mu.Unlock()

	metrics.OnlineVehicles.Dec()
	r.logger.Info("vehicle offline", "vehicleID", vehicleID)
	r.emit(model.OfflineEvent(vehicleID))
}

// Snapshot returns a point-in-time copy of the vehicle state. It never blocks
// on network I/O.
func (r *Registry) Snapshot(vehicleID string) (model.VehicleState, error) {
	r.mu.RLock()
	e, ok := r.entries[vehicleID]
	r.mu.RUnlock()
	if !ok {
		return model.VehicleState{}, model.ErrVehicleNotFound
	}
	return e.snapshot(vehicleID), nil
}

// ListKnown returns the vehicle ids known at call time.
func (r *Registry) ListKnown() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// SnapshotAll returns a point-in-time copy of every known vehicle, sorted by id.
func (r *Registry) SnapshotAll() []model.VehicleState {
	r.mu.RLock()
	states := make([]model.VehicleState, 0, len(r.entries))
	for id, e := range r.entries {
		states = append(states, e.snapshot(id))
	}
	r.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool { return states[i].VehicleID < states[j].VehicleID })
	return states
}

// Sweep marks stale online vehicles offline and evicts long-offline entries
// that no subscriber references. Eviction shares the sweep's write lock so it
// cannot race a fresh publisher re-registering the same id.
func (r *Registry) Sweep(now time.Time) {
	var wentOffline, evicted []string

	r.mu.Lock()
	for id, e := range r.entries {
		e.mu.Lock()
		if e.online && now.Sub(e.lastSeen) >= r.window {
			e.online = false
			wentOffline = append(wentOffline, id)
		}
		if !e.online && r.evictAfter > 0 && r.watchers(id) == 0 {
			ref := e.lastSeen
			if ref.IsZero() {
				ref = e.created
			}
			if now.Sub(ref) >= r.evictAfter {
				delete(r.entries, id)
				evicted = append(evicted, id)
			}
		}
		e.mu.Unlock()
	}
	r.mu.Unlock()

	for _, id := range wentOffline {
		metrics.OnlineVehicles.Dec()
		r.logger.Info("vehicle offline after staleness sweep", "vehicleID", id, "window", r.window)
		r.emit(model.OfflineEvent(id))
	}
	for _, id := range evicted {
		r.logger.Info("evicted offline vehicle", "vehicleID", id)
	}
}

// RunSweeper runs the periodic staleness sweep until the context is done.
// Sweeping at half the staleness window bounds offline detection at 1.5x the
// window after the last real update.
func (r *Registry) RunSweeper(ctx context.Context) error {
	interval := r.window / 2
	if interval <= 0 {
		interval = r.window
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("staleness sweeper started", "interval", interval, "window", r.window)
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

func (r *Registry) getOrCreate(vehicleID string, now time.Time) *entry {
	r.mu.RLock()
	e, ok := r.entries[vehicleID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[vehicleID]; ok {
		return e
	}
	e = &entry{created: now}
	r.entries[vehicleID] = e
	r.logger.Debug("vehicle registered", "vehicleID", vehicleID)
	return e
}

func (e *entry) snapshot(vehicleID string) model.VehicleState {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := model.VehicleState{
		VehicleID:  vehicleID,
		LastSeenAt: e.lastSeen,
		Status:     model.StatusOffline,
	}
	if e.online {
		st.Status = model.StatusOnline
	}
	if e.lastFix != nil {
		fix := *e.lastFix
		st.LastFix = &fix
	}
	return st
}
