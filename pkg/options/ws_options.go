package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*WsOptions)(nil)

// WsOptions contains configuration for the websocket ingress (publisher and
// subscriber feeds).
type WsOptions struct {
	// Addr with server address.
	Addr string `json:"addr" mapstructure:"addr"`

	// ReadLimit is the maximum inbound frame size in bytes.
	ReadLimit int64 `json:"read-limit" mapstructure:"read-limit"`

	// SendBuffer is the per-subscriber outbound event buffer. A subscriber
	// that falls this many events behind is treated as failed and dropped.
	SendBuffer int `json:"send-buffer" mapstructure:"send-buffer"`
}

// NewWsOptions creates a WsOptions object with default parameters.
func NewWsOptions() *WsOptions {
	return &WsOptions{
		Addr:       "0.0.0.0:8080",
		ReadLimit:  512,
		SendBuffer: 64,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *WsOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}
	if o.SendBuffer < 1 {
		errors = append(errors, fmt.Errorf("ws.send-buffer must be at least 1, got %d", o.SendBuffer))
	}

	return errors
}

// AddFlags adds flags related to the websocket server to the specified FlagSet.
func (o *WsOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Addr, "ws.addr", o.Addr, "Specify the websocket server bind address and port.")
	fs.Int64Var(&o.ReadLimit, "ws.read-limit", o.ReadLimit, "Maximum inbound websocket frame size in bytes.")
	fs.IntVar(&o.SendBuffer, "ws.send-buffer", o.SendBuffer, "Outbound event buffer per subscriber connection.")
}
