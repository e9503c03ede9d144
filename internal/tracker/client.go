// Package tracker composes the session, rate-limit and discovery layers
// into the one client the poller talks to.
package tracker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fleetlink-io/fleetlink/internal/pkg/metrics"
	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
	"github.com/fleetlink-io/fleetlink/internal/tracker/fetch"
	"github.com/fleetlink-io/fleetlink/internal/tracker/ratelimit"
	"github.com/fleetlink-io/fleetlink/internal/tracker/session"
	"github.com/fleetlink-io/fleetlink/pkg/log"
	"github.com/fleetlink-io/fleetlink/pkg/options"
)

// Config carries everything the client needs; the zero-value optional
// blocks (solver, store) simply disable those capabilities.
type Config struct {
	Portal    *options.PortalOptions
	Solver    *options.SolverOptions
	Store     *options.StoreOptions
	RateLimit *options.RateLimitOptions
}

// Client owns the HTTP transport and orchestrates
// "ensure session valid → acquire budget → run discovery chain".
// One instance serves one portal account.
type Client struct {
	auth    *session.Authenticator
	fetcher *fetch.Fetcher
	limiter *ratelimit.Limiter
	httpc   *http.Client
}

// NewClient builds the client and its collaborators from config.
func NewClient(cfg *Config) (*Client, error) {
	httpc := &http.Client{
		Transport: newTransport(),
		Timeout:   cfg.Portal.RequestTimeout,
	}

	var solver *session.SolverClient
	if cfg.Solver != nil && cfg.Solver.Enabled() {
		solver = session.NewSolverClient(cfg.Solver.URL, cfg.Solver.MaxTimeout, nil)
		log.Info("Challenge solver enabled", "endpoint", cfg.Solver.URL)
	}

	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.NewLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	limiter.OnWait = func(wait time.Duration) {
		metrics.RateLimitWaits.Inc()
		log.Info("Request budget exhausted, waiting", "wait", wait)
	}

	return &Client{
		auth:    session.NewAuthenticator(cfg.Portal, httpc, solver, store),
		fetcher: fetch.NewFetcher(cfg.Portal, httpc, solver),
		limiter: limiter,
		httpc:   httpc,
	}, nil
}

func newTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func newStore(cfg *Config) (session.Store, error) {
	if cfg.Store == nil {
		return nil, nil
	}
	switch cfg.Store.Backend {
	case options.StoreBackendFile:
		return session.NewFileStore(cfg.Store.Path), nil
	case options.StoreBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Addr,
			Password: cfg.Store.Password,
			DB:       cfg.Store.DB,
		})
		return session.NewRedisStore(client, cfg.Portal.Username, cfg.Portal.SessionValidity), nil
	default:
		return nil, errors.New("unknown session store backend: " + cfg.Store.Backend)
	}
}

// Start restores any persisted session so the first fetch can skip the
// login round-trip.
func (c *Client) Start(ctx context.Context) {
	c.auth.LoadPersisted(ctx)
}

// FetchVehicles runs one full fetch cycle. A session rejection mid-fetch
// triggers exactly one forced re-login and retry; a second rejection in
// the same call is a hard failure, never an endless loop.
func (c *Client) FetchVehicles(ctx context.Context) (core.FetchResult, error) {
	for attempt := 0; ; attempt++ {
		if err := c.auth.EnsureValid(ctx); err != nil {
			return nil, err
		}
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		result, via, err := c.fetcher.Fetch(ctx, c.auth.State())
		if errors.Is(err, core.ErrSessionExpired) {
			c.auth.Invalidate()
			if attempt == 0 {
				log.Info("Session rejected mid-fetch, re-authenticating")
				continue
			}
			return nil, &core.AuthError{Reason: "session rejected twice within one fetch"}
		}
		if err != nil {
			return nil, err
		}

		log.Debug("Fetch cycle complete", "vehicles", len(result), "via", via)
		return result, nil
	}
}

// Diagnostics is a point-in-time snapshot of the client internals,
// served by the HTTP API.
type Diagnostics struct {
	SessionState   string    `json:"session_state"`
	LoggedIn       bool      `json:"logged_in"`
	SessionExpiry  time.Time `json:"session_expiry,omitzero"`
	CookieCount    int       `json:"cookie_count"`
	WindowRequests int       `json:"window_requests"`
	WindowCap      int       `json:"window_cap"`
	WindowSeconds  float64   `json:"window_seconds"`
	Strategies     []string  `json:"strategies"`
}

func (c *Client) Diagnostics() Diagnostics {
	st := c.auth.State()
	return Diagnostics{
		SessionState:   c.auth.LifecycleState(),
		LoggedIn:       st.LoggedIn,
		SessionExpiry:  st.Expiry,
		CookieCount:    len(st.Cookies),
		WindowRequests: c.limiter.Len(),
		WindowCap:      c.limiter.Cap(),
		WindowSeconds:  c.limiter.Window().Seconds(),
		Strategies:     c.fetcher.Strategies(),
	}
}

// Close releases the transport's idle connections.
func (c *Client) Close() {
	c.httpc.CloseIdleConnections()
}
