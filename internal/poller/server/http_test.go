package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetlink-io/fleetlink/internal/poller"
	"github.com/fleetlink-io/fleetlink/internal/tracker"
	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
	"github.com/fleetlink-io/fleetlink/pkg/options"
)

type fakeSource struct {
	snapshot core.FetchResult
	at       time.Time
	healthy  bool
	status   poller.Status
}

func (s *fakeSource) Snapshot() (core.FetchResult, time.Time) { return s.snapshot, s.at }
func (s *fakeSource) Healthy() bool                           { return s.healthy }
func (s *fakeSource) Status() poller.Status                   { return s.status }

type fakeDiag struct{}

func (fakeDiag) Diagnostics() tracker.Diagnostics {
	return tracker.Diagnostics{SessionState: "authenticated", LoggedIn: true, WindowCap: 60}
}

func newTestServer(source *fakeSource) *httptest.Server {
	s := NewServer(options.NewHttpOptions(), source, fakeDiag{})
	return httptest.NewServer(s.server.Handler)
}

func TestHealthAndReadiness(t *testing.T) {
	source := &fakeSource{healthy: true}
	srv := newTestServer(source)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	source.healthy = false
	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestVehicleEndpoints(t *testing.T) {
	source := &fakeSource{
		snapshot: core.FetchResult{
			"bus_1": {ID: "bus_1", Name: "Bus 1", Latitude: 40.7, Longitude: -74.0},
		},
		at:      time.Now(),
		healthy: true,
	}
	srv := newTestServer(source)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/vehicles")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var list struct {
		Vehicles core.FetchResult `json:"vehicles"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Vehicles, 1)

	resp, err = http.Get(srv.URL + "/api/v1/vehicles/bus_1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec core.VehicleRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, "Bus 1", rec.Name)

	resp, err = http.Get(srv.URL + "/api/v1/vehicles/ghost")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDiagnosticsEndpoint(t *testing.T) {
	source := &fakeSource{
		healthy: true,
		status:  poller.Status{ConsecutiveFailures: 1, VehicleCount: 3},
	}
	srv := newTestServer(source)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/diagnostics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Client tracker.Diagnostics `json:"client"`
		Poller poller.Status       `json:"poller"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "authenticated", body.Client.SessionState)
	assert.Equal(t, 60, body.Client.WindowCap)
	assert.Equal(t, 1, body.Poller.ConsecutiveFailures)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&fakeSource{healthy: true})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
