// Package app implements the one-shot fetch command: log in, run the
// discovery chain once and print the result.
package app

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/gosuri/uitable"

	"github.com/fleetlink-io/fleetlink/cmd/fleetlink-fetch/app/options"
	"github.com/fleetlink-io/fleetlink/internal/tracker"
	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
	"github.com/fleetlink-io/fleetlink/pkg/app"
	"github.com/fleetlink-io/fleetlink/pkg/log"
)

const (
	commandName = "fleetlink-fetch"
	commandDesc = `Log into the GPS fleet portal, fetch the current vehicle positions
once and print them. Useful for verifying credentials and connectivity
before deploying the poller daemon.`
)

func NewApp() *app.App {
	opts := options.NewFetchOptions()
	return app.NewApp(
		commandName,
		"Fetch current vehicle positions once",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
}

func run(opts *options.FetchOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)

		ctx := app.SetupSignalContext()

		client, err := tracker.NewClient(&tracker.Config{
			Portal:    opts.Portal,
			Solver:    opts.Solver,
			RateLimit: opts.RateLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to create tracking client: %w", err)
		}
		defer client.Close()

		result, err := client.FetchVehicles(ctx)
		if err != nil {
			return fmt.Errorf("fetch failed: %w", err)
		}
		result = result.Filter(opts.VehicleIDs)

		if opts.Output == options.OutputJSON {
			return json.NewEncoder(os.Stdout).Encode(result)
		}
		return printTable(result)
	}
}

func printTable(result core.FetchResult) error {
	ids := make([]string, 0, len(result))
	for id := range result {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("ID", "NAME", "LATITUDE", "LONGITUDE", "SPEED", "HEADING", "LAST UPDATE", "SOURCE")
	for _, id := range ids {
		rec := result[id]
		table.AddRow(rec.ID, rec.Name,
			fmt.Sprintf("%.6f", rec.Latitude), fmt.Sprintf("%.6f", rec.Longitude),
			formatFloat(rec.Speed), formatFloat(rec.Heading),
			formatTime(rec.LastUpdate), rec.Source)
	}

	_, err := fmt.Fprintln(os.Stdout, table)
	return err
}

func formatFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
