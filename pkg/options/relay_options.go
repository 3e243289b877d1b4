package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*RelayOptions)(nil)

// RelayOptions contains the tuning knobs of the relay core.
type RelayOptions struct {
	// StalenessWindow is how long a vehicle may go without an accepted fix
	// before it is marked offline by the sweep.
	StalenessWindow time.Duration `json:"staleness-window" mapstructure:"staleness-window"`

	// CoalesceInterval is the fan-out cadence. Within one interval only the
	// latest fix per vehicle is delivered.
	CoalesceInterval time.Duration `json:"coalesce-interval" mapstructure:"coalesce-interval"`

	// OfflineEvictionAfter is how long an offline, unwatched vehicle entry is
	// retained before eviction. Zero means never evict.
	OfflineEvictionAfter time.Duration `json:"offline-eviction-after" mapstructure:"offline-eviction-after"`
}

// NewRelayOptions creates a RelayOptions object with default parameters.
func NewRelayOptions() *RelayOptions {
	return &RelayOptions{
		StalenessWindow:      15 * time.Second,
		CoalesceInterval:     2 * time.Second,
		OfflineEvictionAfter: 0,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *RelayOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.StalenessWindow <= 0 {
		errors = append(errors, fmt.Errorf("relay.staleness-window must be positive, got %v", o.StalenessWindow))
	}
	if o.CoalesceInterval <= 0 {
		errors = append(errors, fmt.Errorf("relay.coalesce-interval must be positive, got %v", o.CoalesceInterval))
	}
	if o.OfflineEvictionAfter < 0 {
		errors = append(errors, fmt.Errorf("relay.offline-eviction-after must not be negative, got %v", o.OfflineEvictionAfter))
	}

	return errors
}

// AddFlags adds flags for RelayOptions to the specified FlagSet.
func (o *RelayOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.StalenessWindow, "relay.staleness-window", o.StalenessWindow,
		"How long a vehicle may go without a fix before it is marked offline.")
	fs.DurationVar(&o.CoalesceInterval, "relay.coalesce-interval", o.CoalesceInterval,
		"Fan-out cadence; only the latest fix per vehicle is delivered per interval.")
	fs.DurationVar(&o.OfflineEvictionAfter, "relay.offline-eviction-after", o.OfflineEvictionAfter,
		"Retention for offline, unwatched vehicle entries (0 = never evict).")
}
