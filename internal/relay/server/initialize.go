package server

import (
	"fmt"
	"os"

	"github.com/Alanbenny123/bustrackingnew/pkg/mqtt"
	"github.com/Alanbenny123/bustrackingnew/pkg/options"
)

func initializeMQTTClient(opts *options.MqttOptions) (mqtt.Client, error) {
	cfg := opts.ToClientConfig()

	if cfg.ClientID == "" {
		hostname, _ := os.Hostname()
		cfg.ClientID = fmt.Sprintf("bus-relay-%s", hostname)
	}

	return mqtt.NewClient(cfg)
}
