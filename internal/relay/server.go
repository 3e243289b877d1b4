// Package relay wires the relay core to its ingress servers and runs them as
// one unit.
package relay

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/service"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/server"
	"github.com/Alanbenny123/bustrackingnew/pkg/log"
)

// RelayServer is the assembled relay process: the core service with its
// periodic workers plus every ingress server.
type RelayServer struct {
	svc     *service.Service
	manager *server.Manager
	logger  log.Logger
}

// Run starts the core workers and all ingress servers, then blocks until the
// context is cancelled or a component fails.
func (s *RelayServer) Run(ctx context.Context) error {
	s.logger.Info("relay starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.svc.Run(ctx) })
	g.Go(func() error { return s.manager.Start(ctx) })

	err := g.Wait()
	s.logger.Info("relay stopped")
	return err
}
