// Package options holds the flags of the one-shot fetch command.
package options

import (
	"errors"
	"fmt"

	"github.com/fleetlink-io/fleetlink/pkg/app"
	"github.com/fleetlink-io/fleetlink/pkg/log"
	"github.com/fleetlink-io/fleetlink/pkg/options"
)

// Output formats supported by fleetlink-fetch.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// FetchOptions configures a single fetch cycle from the command line.
type FetchOptions struct {
	Portal    *options.PortalOptions    `json:"portal" mapstructure:"portal"`
	Solver    *options.SolverOptions    `json:"solver" mapstructure:"solver"`
	RateLimit *options.RateLimitOptions `json:"ratelimit" mapstructure:"ratelimit"`
	Log       *log.Options              `json:"log" mapstructure:"log"`

	// Output selects the rendering of the result, table or json.
	Output string `json:"output" mapstructure:"output"`

	// VehicleIDs optionally restricts output to the given vehicle slugs.
	VehicleIDs []string `json:"vehicle-ids" mapstructure:"vehicle-ids"`
}

var _ app.CliOptions = (*FetchOptions)(nil)

func NewFetchOptions() *FetchOptions {
	return &FetchOptions{
		Portal:    options.NewPortalOptions(),
		Solver:    options.NewSolverOptions(),
		RateLimit: options.NewRateLimitOptions(),
		Log:       log.NewOptions(),
		Output:    OutputTable,
	}
}

func (o *FetchOptions) AddFlags(fss *app.FlagSets) {
	o.Portal.AddFlags(fss.FlagSet("portal"))
	o.Solver.AddFlags(fss.FlagSet("solver"))
	o.RateLimit.AddFlags(fss.FlagSet("ratelimit"))
	o.Log.AddFlags(fss.FlagSet("log"))

	fs := fss.FlagSet("output")
	fs.StringVarP(&o.Output, "output", "o", o.Output, "Output format, one of: table, json.")
	fs.StringSliceVar(&o.VehicleIDs, "vehicle-ids", o.VehicleIDs, "Restrict output to the given vehicle ids.")
}

func (o *FetchOptions) Complete() error {
	return nil
}

func (o *FetchOptions) Validate() error {
	var errs []error
	errs = append(errs, o.Portal.Validate()...)
	errs = append(errs, o.Solver.Validate()...)
	errs = append(errs, o.RateLimit.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	if o.Output != OutputTable && o.Output != OutputJSON {
		errs = append(errs, fmt.Errorf("--output must be %q or %q, got %q", OutputTable, OutputJSON, o.Output))
	}
	return errors.Join(errs...)
}
