package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
	"github.com/fleetlink-io/fleetlink/pkg/options"
)

type scriptedClient struct {
	responses []func() (core.FetchResult, error)
	calls     int
}

func (c *scriptedClient) FetchVehicles(context.Context) (core.FetchResult, error) {
	i := c.calls
	c.calls++
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	return c.responses[i]()
}

func ok(result core.FetchResult) func() (core.FetchResult, error) {
	return func() (core.FetchResult, error) { return result, nil }
}

func fail(err error) func() (core.FetchResult, error) {
	return func() (core.FetchResult, error) { return nil, err }
}

func record(id, name string) core.VehicleRecord {
	return core.VehicleRecord{ID: id, Name: name, Latitude: 1, Longitude: 2}
}

type captureSink struct {
	name      string
	snapshots []core.FetchResult
	err       error
}

func (s *captureSink) Name() string { return s.name }

func (s *captureSink) Publish(_ context.Context, snapshot core.FetchResult) error {
	s.snapshots = append(s.snapshots, snapshot)
	return s.err
}

func testPollerOptions() *options.PollerOptions {
	o := options.NewPollerOptions()
	o.FetchTimeout = time.Second
	return o
}

func TestCycleSuccessUpdatesSnapshot(t *testing.T) {
	client := &scriptedClient{responses: []func() (core.FetchResult, error){
		ok(core.FetchResult{"bus_1": record("bus_1", "Bus 1")}),
	}}
	sink := &captureSink{name: "capture"}
	c := NewCoordinator(client, testPollerOptions(), sink)

	require.NoError(t, c.cycle(context.Background()))

	snapshot, at := c.Snapshot()
	assert.Len(t, snapshot, 1)
	assert.WithinDuration(t, time.Now(), at, time.Second)
	assert.True(t, c.Healthy())
	require.Len(t, sink.snapshots, 1)
	assert.Contains(t, sink.snapshots[0], "bus_1")
}

func TestCycleFailureKeepsCachedSnapshot(t *testing.T) {
	boom := &core.ConnectionError{Op: "fetch", Err: errors.New("dns")}
	client := &scriptedClient{responses: []func() (core.FetchResult, error){
		ok(core.FetchResult{"bus_1": record("bus_1", "Bus 1")}),
		fail(boom),
	}}
	c := NewCoordinator(client, testPollerOptions())

	require.NoError(t, c.cycle(context.Background()))
	require.Error(t, c.cycle(context.Background()))

	// Consumers still see the last good data through the outage.
	snapshot, _ := c.Snapshot()
	assert.Len(t, snapshot, 1)
	assert.True(t, c.Healthy())
	assert.Equal(t, 1, c.Status().ConsecutiveFailures)
}

func TestDegradedAfterToleranceExceeded(t *testing.T) {
	boom := &core.ConnectionError{Op: "fetch", Err: errors.New("dns")}
	client := &scriptedClient{responses: []func() (core.FetchResult, error){fail(boom)}}
	c := NewCoordinator(client, testPollerOptions())

	for range 3 {
		require.Error(t, c.cycle(context.Background()))
	}

	assert.False(t, c.Healthy())
	assert.True(t, c.Status().Degraded)

	// A single success clears the streak.
	client.responses = []func() (core.FetchResult, error){
		ok(core.FetchResult{"bus_1": record("bus_1", "Bus 1")}),
	}
	client.calls = 0
	require.NoError(t, c.cycle(context.Background()))
	assert.True(t, c.Healthy())
	assert.Equal(t, 0, c.Status().ConsecutiveFailures)
}

func TestCycleAppliesVehicleFilter(t *testing.T) {
	client := &scriptedClient{responses: []func() (core.FetchResult, error){
		ok(core.FetchResult{
			"bus_1": record("bus_1", "Bus 1"),
			"bus_2": record("bus_2", "Bus 2"),
		}),
	}}
	opts := testPollerOptions()
	opts.VehicleIDs = []string{"bus_2"}
	c := NewCoordinator(client, opts)

	require.NoError(t, c.cycle(context.Background()))

	snapshot, _ := c.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Contains(t, snapshot, "bus_2")
}

func TestSinkFailureDoesNotFailCycle(t *testing.T) {
	client := &scriptedClient{responses: []func() (core.FetchResult, error){
		ok(core.FetchResult{"bus_1": record("bus_1", "Bus 1")}),
	}}
	sink := &captureSink{name: "broken", err: errors.New("broker down")}
	c := NewCoordinator(client, testPollerOptions(), sink)

	require.NoError(t, c.cycle(context.Background()))
	assert.True(t, c.Healthy())
}

func TestRunStopsOnAuthError(t *testing.T) {
	client := &scriptedClient{responses: []func() (core.FetchResult, error){
		fail(&core.AuthError{Reason: "bad credentials"}),
	}}
	c := NewCoordinator(client, testPollerOptions())

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsAuthError(err))
	assert.True(t, c.Status().NeedsReauth)
	assert.False(t, c.Healthy())
	assert.Equal(t, 1, client.calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	client := &scriptedClient{responses: []func() (core.FetchResult, error){
		ok(core.FetchResult{}),
	}}
	c := NewCoordinator(client, testPollerOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
