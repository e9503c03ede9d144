package poller

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fleetlink-io/fleetlink/internal/pkg/metrics"
	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
	"github.com/fleetlink-io/fleetlink/pkg/log"
	"github.com/fleetlink-io/fleetlink/pkg/options"
)

// VehicleClient is what the coordinator drives once per cycle. Satisfied
// by *tracker.Client.
type VehicleClient interface {
	FetchVehicles(ctx context.Context) (core.FetchResult, error)
}

// Sink receives each successful snapshot, e.g. the MQTT publisher or the
// S3 archiver. Sink failures degrade that sink only; they never fail the
// cycle.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snapshot core.FetchResult) error
}

// Status summarizes the coordinator's health for diagnostics and the
// readiness probe.
type Status struct {
	LastSuccess         time.Time `json:"last_success,omitzero"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Degraded            bool      `json:"degraded"`
	NeedsReauth         bool      `json:"needs_reauth"`
	VehicleCount        int       `json:"vehicle_count"`
}

// Coordinator drives the client on a timer, tolerates a bounded streak of
// transient failures while serving the last good snapshot, and escalates
// credential rejections as terminal.
type Coordinator struct {
	client VehicleClient
	opts   *options.PollerOptions
	sinks  []Sink

	mu       sync.RWMutex
	snapshot core.FetchResult
	status   Status
}

func NewCoordinator(client VehicleClient, opts *options.PollerOptions, sinks ...Sink) *Coordinator {
	return &Coordinator{
		client:   client,
		opts:     opts,
		sinks:    sinks,
		snapshot: core.FetchResult{},
	}
}

// AddSink registers a snapshot consumer. Not safe to call after Run.
func (c *Coordinator) AddSink(s Sink) {
	c.sinks = append(c.sinks, s)
}

// Run polls until ctx is cancelled or the portal rejects the credentials.
// Failing cycles are retried on an exponential backoff capped at the
// configured interval instead of waiting the full interval.
func (c *Coordinator) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Second
	bo.MaxInterval = c.opts.Interval
	bo.MaxElapsedTime = 0

	log.Info("Polling coordinator started", "interval", c.opts.Interval)
	for {
		err := c.cycle(ctx)
		if err != nil && core.IsAuthError(err) {
			c.setReauth(err)
			log.Error(err, "Credentials rejected, polling stopped until re-configuration")
			return err
		}

		wait := c.opts.Interval
		if err != nil {
			wait = bo.NextBackOff()
		} else {
			bo.Reset()
		}

		select {
		case <-ctx.Done():
			log.Info("Polling coordinator stopping")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Coordinator) cycle(ctx context.Context) error {
	cycleCtx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	start := time.Now()
	result, err := c.client.FetchVehicles(cycleCtx)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.FetchCyclesTotal.WithLabelValues("failure").Inc()
		c.recordFailure(err)
		return err
	}

	metrics.FetchCyclesTotal.WithLabelValues("success").Inc()
	snapshot := result.Filter(c.opts.VehicleIDs)
	c.recordSuccess(snapshot)
	log.Info("Fetch cycle succeeded", "vehicles", len(snapshot), "took", time.Since(start))

	for _, sink := range c.sinks {
		if err := sink.Publish(ctx, snapshot); err != nil {
			log.Warn("Snapshot sink failed", "sink", sink.Name(), "err", err)
		}
	}
	return nil
}

func (c *Coordinator) recordSuccess(snapshot core.FetchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = snapshot
	c.status = Status{
		LastSuccess:  time.Now(),
		VehicleCount: len(snapshot),
	}
	metrics.VehiclesTracked.Set(float64(len(snapshot)))
	metrics.ConsecutiveFailures.Set(0)
}

// recordFailure keeps the previous snapshot so consumers hold last-known
// positions through a transient outage. Past the tolerance threshold the
// coordinator reports itself degraded.
func (c *Coordinator) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.ConsecutiveFailures++
	c.status.LastError = err.Error()
	c.status.Degraded = c.status.ConsecutiveFailures >= c.opts.MaxConsecutiveFailures
	metrics.ConsecutiveFailures.Set(float64(c.status.ConsecutiveFailures))

	if c.status.Degraded {
		log.Error(err, "Fetch cycle failed past tolerance",
			"failures", c.status.ConsecutiveFailures, "tolerance", c.opts.MaxConsecutiveFailures)
	} else {
		log.Warn("Fetch cycle failed, serving cached snapshot",
			"failures", c.status.ConsecutiveFailures, "tolerance", c.opts.MaxConsecutiveFailures, "err", err)
	}
}

func (c *Coordinator) setReauth(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.NeedsReauth = true
	c.status.LastError = err.Error()
	c.status.Degraded = true
}

// Snapshot returns the most recent successful fetch result and when it
// was taken. During an outage this is the cached last-known-good data.
func (c *Coordinator) Snapshot() (core.FetchResult, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.status.LastSuccess
}

// Healthy reports whether the failure streak is inside tolerance.
func (c *Coordinator) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.status.Degraded && !c.status.NeedsReauth
}

// Status returns a copy of the current status.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}
