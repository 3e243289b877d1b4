package server

import (
	"github.com/Alanbenny123/bustrackingnew/pkg/options"
)

// Config aggregates the options of all ingress servers.
type Config struct {
	WsOptions   *options.WsOptions
	HttpOptions *options.HttpOptions
	MqttOptions *options.MqttOptions
}
