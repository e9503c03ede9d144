package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*RateLimitOptions)(nil)

// RateLimitOptions bounds the outbound request rate against the portal.
type RateLimitOptions struct {
	// MaxRequests allowed within Window.
	MaxRequests int `json:"max-requests" mapstructure:"max-requests"`

	// Window is the trailing admission window.
	Window time.Duration `json:"window" mapstructure:"window"`
}

// NewRateLimitOptions creates a RateLimitOptions object with default
// parameters (60 requests per hour).
func NewRateLimitOptions() *RateLimitOptions {
	return &RateLimitOptions{
		MaxRequests: 60,
		Window:      time.Hour,
	}
}

func (o *RateLimitOptions) Validate() []error {
	errors := []error{}

	if o.MaxRequests < 1 {
		errors = append(errors, fmt.Errorf("ratelimit.max-requests must be positive"))
	}
	if o.Window <= 0 {
		errors = append(errors, fmt.Errorf("ratelimit.window must be positive"))
	}

	return errors
}

func (o *RateLimitOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.MaxRequests, "ratelimit.max-requests", o.MaxRequests, "Maximum portal requests within the window.")
	fs.DurationVar(&o.Window, "ratelimit.window", o.Window, "Trailing admission window.")
}
