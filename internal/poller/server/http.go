// Package server exposes the poller's state over HTTP: health and
// readiness probes, Prometheus metrics, and a small read-only JSON API
// for the latest vehicle snapshot.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetlink-io/fleetlink/internal/poller"
	"github.com/fleetlink-io/fleetlink/internal/tracker"
	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
	"github.com/fleetlink-io/fleetlink/pkg/log"
	"github.com/fleetlink-io/fleetlink/pkg/options"
)

// SnapshotSource is the coordinator surface the API reads from.
type SnapshotSource interface {
	Snapshot() (core.FetchResult, time.Time)
	Healthy() bool
	Status() poller.Status
}

// DiagnosticsSource is the client surface behind /api/v1/diagnostics.
type DiagnosticsSource interface {
	Diagnostics() tracker.Diagnostics
}

type Server struct {
	server *http.Server
	source SnapshotSource
	diag   DiagnosticsSource
}

func NewServer(opts *options.HttpOptions, source SnapshotSource, diag DiagnosticsSource) *Server {
	s := &Server{source: source, diag: diag}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.HandleFunc("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/vehicles", s.handleVehicles).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}", s.handleVehicle).Methods(http.MethodGet)
	api.HandleFunc("/diagnostics", s.handleDiagnostics).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	}
	return s
}

func (s *Server) Start(ctx context.Context) error {
	log.Info("Starting HTTP server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.source.Healthy() {
		http.Error(w, "degraded", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type vehiclesResponse struct {
	Vehicles  core.FetchResult `json:"vehicles"`
	UpdatedAt time.Time        `json:"updated_at,omitzero"`
}

func (s *Server) handleVehicles(w http.ResponseWriter, _ *http.Request) {
	snapshot, updatedAt := s.source.Snapshot()
	writeJSON(w, http.StatusOK, vehiclesResponse{Vehicles: snapshot, UpdatedAt: updatedAt})
}

func (s *Server) handleVehicle(w http.ResponseWriter, r *http.Request) {
	snapshot, _ := s.source.Snapshot()
	rec, ok := snapshot[mux.Vars(r)["id"]]
	if !ok {
		http.Error(w, "vehicle not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type diagnosticsResponse struct {
	Client tracker.Diagnostics `json:"client"`
	Poller poller.Status       `json:"poller"`
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, diagnosticsResponse{
		Client: s.diag.Diagnostics(),
		Poller: s.source.Status(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("Failed to encode response", "err", err)
	}
}
