// Package coalesce bounds the fan-out rate per vehicle. A noisy publisher
// (sub-second GPS ticks) must not generate one fan-out event per tick: within
// one interval only the latest fix per vehicle is kept, and it is emitted at
// the interval boundary. Intermediate points are dropped by design; trail
// reconstruction is a collaborator's job.
package coalesce

import (
	"context"
	"sync"
	"time"

	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/model"
	"github.com/Alanbenny123/bustrackingnew/pkg/log"
)

// EmitFunc receives the coalesced update for one vehicle.
type EmitFunc func(vehicleID string, fix model.Coordinate)

// Coalescer batches rapid-fire position reports per vehicle into a
// bounded-rate stream. State is owned exclusively here, scoped per vehicle id.
type Coalescer struct {
	mu      sync.Mutex
	pending map[string]model.Coordinate

	interval time.Duration
	emit     EmitFunc
	logger   log.Logger
}

// New creates a Coalescer that emits at most one update per vehicle per
// interval through emit.
func New(interval time.Duration, emit EmitFunc, logger log.Logger) *Coalescer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Coalescer{
		pending:  make(map[string]model.Coordinate),
		interval: interval,
		emit:     emit,
		logger:   logger.WithName("coalesce"),
	}
}

// Offer records a fix as the pending update for the vehicle. Within an
// interval only the fix with the latest capturedAt survives.
func (c *Coalescer) Offer(vehicleID string, fix model.Coordinate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.pending[vehicleID]; ok && fix.CapturedAt.Before(cur.CapturedAt) {
		return
	}
	c.pending[vehicleID] = fix
}

// Forget drops any pending update for the vehicle. Called when a vehicle goes
// offline or is evicted so a stale position does not trail the offline event.
func (c *Coalescer) Forget(vehicleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, vehicleID)
}

// Run flushes pending updates at every interval boundary until the context is
// done. A vehicle with no new fix in an interval produces no emission;
// subscribers rely on the offline event, not absence of updates.
func (c *Coalescer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("coalescer started", "interval", c.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.flush()
		}
	}
}

// flush emits every pending update and resets the batch. Emission happens
// outside the lock so a slow sink cannot block publishers offering fixes.
func (c *Coalescer) flush() {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.pending
	c.pending = make(map[string]model.Coordinate)
	c.mu.Unlock()

	for id, fix := range batch {
		c.emit(id, fix)
	}
}
