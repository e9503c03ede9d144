// Package app assembles and runs the fleetlink poller daemon.
package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/fleetlink-io/fleetlink/cmd/fleetlink-poller/app/options"
	"github.com/fleetlink-io/fleetlink/internal/poller"
	"github.com/fleetlink-io/fleetlink/internal/poller/server"
	"github.com/fleetlink-io/fleetlink/internal/tracker"
	"github.com/fleetlink-io/fleetlink/pkg/app"
	"github.com/fleetlink-io/fleetlink/pkg/log"
	"github.com/fleetlink-io/fleetlink/pkg/mqtt"
)

const (
	commandName = "fleetlink-poller"
	commandDesc = `The fleetlink poller logs into the GPS fleet portal, polls vehicle
positions on a fixed interval and republishes them over MQTT, to object
storage and through a read-only HTTP API.`
)

func NewApp() *app.App {
	opts := options.NewPollerOptions()
	return app.NewApp(
		commandName,
		"Launch the fleet position polling daemon",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
}

func run(opts *options.PollerOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)

		ctx := app.SetupSignalContext()

		client, err := tracker.NewClient(&tracker.Config{
			Portal:    opts.Portal,
			Solver:    opts.Solver,
			Store:     opts.Store,
			RateLimit: opts.RateLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to create tracking client: %w", err)
		}
		defer client.Close()
		client.Start(ctx)

		coordinator := poller.NewCoordinator(client, opts.Poller)

		if opts.Mqtt.Enabled() {
			mqttClient, err := mqtt.NewClient(opts.Mqtt.ToClientConfig())
			if err != nil {
				return fmt.Errorf("failed to create mqtt client: %w", err)
			}
			if err := mqttClient.Start(ctx); err != nil {
				return fmt.Errorf("failed to start mqtt client: %w", err)
			}
			defer mqttClient.Disconnect(context.Background())
			coordinator.AddSink(poller.NewPublisher(mqttClient, opts.Mqtt.TopicRoot))
		}

		if opts.S3.Enabled() {
			archiver, err := poller.NewArchiver(opts.S3)
			if err != nil {
				return fmt.Errorf("failed to create snapshot archiver: %w", err)
			}
			if err := archiver.EnsureBucket(ctx); err != nil {
				// Archiving is best-effort; the poller still runs.
				log.Warn("Snapshot bucket unavailable", "err", err)
			}
			coordinator.AddSink(archiver)
		}

		httpSrv := server.NewServer(opts.Http, coordinator, client)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return coordinator.Run(ctx) })
		g.Go(func() error { return httpSrv.Start(ctx) })

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}
