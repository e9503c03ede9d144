// Package options collects every configuration block of the poller daemon.
package options

import (
	"errors"

	"github.com/fleetlink-io/fleetlink/pkg/app"
	"github.com/fleetlink-io/fleetlink/pkg/log"
	"github.com/fleetlink-io/fleetlink/pkg/options"
)

// PollerOptions aggregates the option blocks of the poller daemon.
type PollerOptions struct {
	Portal    *options.PortalOptions    `json:"portal" mapstructure:"portal"`
	Solver    *options.SolverOptions    `json:"solver" mapstructure:"solver"`
	Store     *options.StoreOptions     `json:"store" mapstructure:"store"`
	RateLimit *options.RateLimitOptions `json:"ratelimit" mapstructure:"ratelimit"`
	Poller    *options.PollerOptions    `json:"poller" mapstructure:"poller"`
	Http      *options.HttpOptions      `json:"http" mapstructure:"http"`
	Mqtt      *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	S3        *options.S3Options        `json:"s3" mapstructure:"s3"`
	Log       *log.Options              `json:"log" mapstructure:"log"`
}

var _ app.CliOptions = (*PollerOptions)(nil)

func NewPollerOptions() *PollerOptions {
	return &PollerOptions{
		Portal:    options.NewPortalOptions(),
		Solver:    options.NewSolverOptions(),
		Store:     options.NewStoreOptions(),
		RateLimit: options.NewRateLimitOptions(),
		Poller:    options.NewPollerOptions(),
		Http:      options.NewHttpOptions(),
		Mqtt:      options.NewMqttOptions(),
		S3:        options.NewS3Options(),
		Log:       log.NewOptions(),
	}
}

func (o *PollerOptions) AddFlags(fss *app.FlagSets) {
	o.Portal.AddFlags(fss.FlagSet("portal"))
	o.Solver.AddFlags(fss.FlagSet("solver"))
	o.Store.AddFlags(fss.FlagSet("store"))
	o.RateLimit.AddFlags(fss.FlagSet("ratelimit"))
	o.Poller.AddFlags(fss.FlagSet("poller"))
	o.Http.AddFlags(fss.FlagSet("http"))
	o.Mqtt.AddFlags(fss.FlagSet("mqtt"))
	o.S3.AddFlags(fss.FlagSet("s3"))
	o.Log.AddFlags(fss.FlagSet("log"))
}

func (o *PollerOptions) Complete() error {
	return nil
}

func (o *PollerOptions) Validate() error {
	var errs []error
	errs = append(errs, o.Portal.Validate()...)
	errs = append(errs, o.Solver.Validate()...)
	errs = append(errs, o.Store.Validate()...)
	errs = append(errs, o.RateLimit.Validate()...)
	errs = append(errs, o.Poller.Validate()...)
	errs = append(errs, o.Http.Validate()...)
	errs = append(errs, o.Mqtt.Validate()...)
	errs = append(errs, o.S3.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return errors.Join(errs...)
}
