package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*SolverOptions)(nil)

// SolverOptions configures the optional challenge-solving proxy
// (a FlareSolverr-compatible browser-rendering service).
// Leaving URL empty disables the proxy fallback.
type SolverOptions struct {
	// URL is the solver command endpoint, e.g. http://localhost:8191/v1.
	URL string `json:"url" mapstructure:"url"`

	// MaxTimeout is passed to the solver per command, in wall-clock time.
	MaxTimeout time.Duration `json:"max-timeout" mapstructure:"max-timeout"`
}

// NewSolverOptions creates a SolverOptions object with default parameters.
func NewSolverOptions() *SolverOptions {
	return &SolverOptions{
		MaxTimeout: 60 * time.Second,
	}
}

// Enabled reports whether a solver endpoint has been configured.
func (o *SolverOptions) Enabled() bool {
	return o != nil && o.URL != ""
}

func (o *SolverOptions) Validate() []error {
	errors := []error{}

	if o.URL != "" {
		if u, err := url.Parse(o.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Errorf("invalid solver URL %q", o.URL))
		}
	}

	return errors
}

func (o *SolverOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.URL, "solver.url", o.URL, "Challenge-solving proxy endpoint (e.g. http://localhost:8191/v1). Empty disables the fallback.")
	fs.DurationVar(&o.MaxTimeout, "solver.max-timeout", o.MaxTimeout, "Per-command timeout forwarded to the solver.")
}
