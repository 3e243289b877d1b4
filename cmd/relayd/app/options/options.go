// Package options aggregates every configuration surface of the relayd
// process.
package options

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/Alanbenny123/bustrackingnew/internal/relay"
	"github.com/Alanbenny123/bustrackingnew/pkg/log"
	"github.com/Alanbenny123/bustrackingnew/pkg/options"
)

// ServerOptions contains the options of all relayd components.
type ServerOptions struct {
	WsOptions    *options.WsOptions    `json:"ws" mapstructure:"ws"`
	HttpOptions  *options.HttpOptions  `json:"http" mapstructure:"http"`
	MqttOptions  *options.MqttOptions  `json:"mqtt" mapstructure:"mqtt"`
	RelayOptions *options.RelayOptions `json:"relay" mapstructure:"relay"`
	Log          *log.Options          `json:"log" mapstructure:"log"`
}

// NewServerOptions creates a ServerOptions object with default parameters.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		WsOptions:    options.NewWsOptions(),
		HttpOptions:  options.NewHttpOptions(),
		MqttOptions:  options.NewMqttOptions(),
		RelayOptions: options.NewRelayOptions(),
		Log:          log.NewOptions(),
	}
}

// AddFlags registers all component flags on the given flag set.
func (o *ServerOptions) AddFlags(fs *pflag.FlagSet) {
	o.WsOptions.AddFlags(fs)
	o.HttpOptions.AddFlags(fs)
	o.MqttOptions.AddFlags(fs)
	o.RelayOptions.AddFlags(fs)
	o.Log.AddFlags(fs)
}

// Complete fills in any fields not set that are required to have valid data.
func (o *ServerOptions) Complete() error {
	return nil
}

// Validate checks every component's options.
func (o *ServerOptions) Validate() error {
	var errs []error
	errs = append(errs, o.WsOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.RelayOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return errors.Join(errs...)
}

// Config builds the relay runtime config from the validated options.
func (o *ServerOptions) Config() (*relay.Config, error) {
	return &relay.Config{
		WsOptions:    o.WsOptions,
		HttpOptions:  o.HttpOptions,
		MqttOptions:  o.MqttOptions,
		RelayOptions: o.RelayOptions,
	}, nil
}
