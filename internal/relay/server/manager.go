// Package server assembles and runs the relay's ingress servers.
package server

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/service"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/server/http"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/server/mqtt"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/server/ws"
	"github.com/Alanbenny123/bustrackingnew/pkg/log"
	"github.com/Alanbenny123/bustrackingnew/pkg/mqtt/topic"
)

// Server defines the common interface for all sub-servers (ws, mqtt, http).
type Server interface {
	Start(ctx context.Context) error
}

// Manager manages the lifecycle of all protocol servers.
type Manager struct {
	servers []Server
	logger  log.Logger
}

// NewManager creates a new server manager and initializes all sub-servers.
// The websocket and admin servers always run; the MQTT ingest only when
// enabled.
func NewManager(cfg *Config, svc *service.Service, logger log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	var servers []Server

	servers = append(servers, ws.NewServer(cfg.WsOptions, svc, logger))
	servers = append(servers, http.NewServer(cfg.HttpOptions, svc, logger))

	if cfg.MqttOptions.Enabled {
		client, err := initializeMQTTClient(cfg.MqttOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		builder := topic.NewBuilder(cfg.MqttOptions.TopicRoot)
		servers = append(servers, mqtt.NewServer(client, builder, svc, logger))
	}

	return &Manager{
		servers: servers,
		logger:  logger,
	}, nil
}

// Start launches all servers in parallel and waits for termination.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, s := range m.servers {
		srv := s
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	m.logger.Info("all servers starting", "count", len(m.servers))
	return g.Wait()
}
