package relay

import (
	"fmt"

	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/service"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/server"
	"github.com/Alanbenny123/bustrackingnew/pkg/log"
	"github.com/Alanbenny123/bustrackingnew/pkg/options"
)

// Config aggregates everything the relay server needs to run.
type Config struct {
	WsOptions    *options.WsOptions
	HttpOptions  *options.HttpOptions
	MqttOptions  *options.MqttOptions
	RelayOptions *options.RelayOptions
}

// NewRelayServer assembles the core and the ingress servers from the config.
func (cfg *Config) NewRelayServer() (*RelayServer, error) {
	logger := log.Std()

	svc := service.New(service.Config{
		StalenessWindow:      cfg.RelayOptions.StalenessWindow,
		CoalesceInterval:     cfg.RelayOptions.CoalesceInterval,
		OfflineEvictionAfter: cfg.RelayOptions.OfflineEvictionAfter,
		Logger:               logger,
	})

	serverConfig := &server.Config{
		WsOptions:   cfg.WsOptions,
		HttpOptions: cfg.HttpOptions,
		MqttOptions: cfg.MqttOptions,
	}
	manager, err := server.NewManager(serverConfig, svc, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init server manager: %w", err)
	}

	return &RelayServer{
		svc:     svc,
		manager: manager,
		logger:  logger,
	}, nil
}
