// Package app wraps cobra, pflag and viper into the small command framework
// shared by the fleetlink binaries: declare an options struct, hand it to
// NewApp and the framework wires flags, the config file and validation
// before invoking the run function.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fleetlink-io/fleetlink/pkg/log"
)

// RunFunc defines the application's startup callback function.
type RunFunc func() error

// CliOptions is the contract command option structs implement.
type CliOptions interface {
	// AddFlags binds every flag group to the command's flag set.
	AddFlags(fs *FlagSets)

	// Complete fills in defaults that depend on other options.
	Complete() error

	// Validate checks the final option values.
	Validate() error
}

// App is a wrapper around a cobra command with standardized option handling.
type App struct {
	name        string
	short       string
	description string
	options     CliOptions
	runFunc     RunFunc
	noConfig    bool
	cmdArgs     cobra.PositionalArgs
	cmd         *cobra.Command
}

// Option configures an App during construction.
type Option func(*App)

// WithDescription sets the long description shown in help output.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// WithOptions attaches the command's option struct.
func WithOptions(opts CliOptions) Option {
	return func(a *App) {
		a.options = opts
	}
}

// WithRunFunc sets the application startup callback.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) {
		a.runFunc = run
	}
}

// WithNoConfig disables the --config file flag for commands that
// take everything from the command line.
func WithNoConfig() Option {
	return func(a *App) {
		a.noConfig = true
	}
}

// WithDefaultValidArgs rejects any positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.cmdArgs = cobra.NoArgs
	}
}

// NewApp creates an App.
func NewApp(name string, short string, opts ...Option) *App {
	a := &App{
		name:  name,
		short: short,
	}

	for _, o := range opts {
		o(a)
	}

	a.buildCommand()
	return a
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.short,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.cmdArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run()
		},
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	fss := NewFlagSets()
	if a.options != nil {
		a.options.AddFlags(fss)
	}
	if !a.noConfig {
		addConfigFlag(a.name, fss.FlagSet("global"))
	}
	fss.ApplyTo(cmd)

	a.cmd = cmd
}

func (a *App) run() error {
	if !a.noConfig {
		if err := loadConfig(a.name, a.options); err != nil {
			return err
		}
	}

	if a.options != nil {
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	if a.runFunc != nil {
		return a.runFunc()
	}
	return nil
}

// Run executes the application and exits non-zero on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", a.name, err)
		os.Exit(1)
	}
}

// Command exposes the underlying cobra command, mainly for tests.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// SetupSignalContext returns a context cancelled on SIGINT or SIGTERM.
func SetupSignalContext() context.Context {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
		log.Info("Shutdown signal received")
	}()
	return ctx
}
