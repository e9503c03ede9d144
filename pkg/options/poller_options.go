package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*PollerOptions)(nil)

// Poll interval bounds. The lower bound protects the account from the
// portal's ban heuristics, the upper keeps data from going stale.
const (
	MinPollInterval = 10 * time.Second
	MaxPollInterval = 300 * time.Second
)

// PollerOptions tunes the polling coordinator.
type PollerOptions struct {
	// Interval between fetch cycles.
	Interval time.Duration `json:"interval" mapstructure:"interval"`

	// FetchTimeout bounds a single fetch cycle end to end.
	FetchTimeout time.Duration `json:"fetch-timeout" mapstructure:"fetch-timeout"`

	// MaxConsecutiveFailures before the poller stops serving cached data
	// and reports itself degraded.
	MaxConsecutiveFailures int `json:"max-consecutive-failures" mapstructure:"max-consecutive-failures"`

	// VehicleIDs optionally restricts output to a subset of vehicle slugs.
	VehicleIDs []string `json:"vehicle-ids" mapstructure:"vehicle-ids"`
}

// NewPollerOptions creates a PollerOptions object with default parameters.
func NewPollerOptions() *PollerOptions {
	return &PollerOptions{
		Interval:               60 * time.Second,
		FetchTimeout:           90 * time.Second,
		MaxConsecutiveFailures: 3,
	}
}

func (o *PollerOptions) Validate() []error {
	errors := []error{}

	if o.Interval < MinPollInterval || o.Interval > MaxPollInterval {
		errors = append(errors, fmt.Errorf("poller.interval %s outside [%s, %s]",
			o.Interval, MinPollInterval, MaxPollInterval))
	}
	if o.MaxConsecutiveFailures < 1 {
		errors = append(errors, fmt.Errorf("poller.max-consecutive-failures must be at least 1"))
	}

	return errors
}

func (o *PollerOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.Interval, "poller.interval", o.Interval, "Interval between fetch cycles.")
	fs.DurationVar(&o.FetchTimeout, "poller.fetch-timeout", o.FetchTimeout, "Timeout for a single fetch cycle.")
	fs.IntVar(&o.MaxConsecutiveFailures, "poller.max-consecutive-failures", o.MaxConsecutiveFailures, "Consecutive failures tolerated before reporting degraded.")
	fs.StringSliceVar(&o.VehicleIDs, "poller.vehicle-ids", o.VehicleIDs, "Optional subset of vehicle ids to publish.")
}
