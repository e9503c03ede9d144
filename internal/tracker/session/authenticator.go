package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"golang.org/x/sync/singleflight"

	"github.com/fleetlink-io/fleetlink/internal/pkg/metrics"
	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
	"github.com/fleetlink-io/fleetlink/pkg/log"
	"github.com/fleetlink-io/fleetlink/pkg/options"
)

// Authenticator owns the SessionState: it performs logins through the
// strategy chain, persists harvested cookies, and invalidates the session
// when the fetch layer reports rejection. Concurrent callers never
// double-authenticate; they queue behind one in-flight login.
type Authenticator struct {
	opts   *options.PortalOptions
	solver *SolverClient
	store  Store
	base   *http.Client

	group      singleflight.Group
	strategies []loginStrategy

	mu      sync.RWMutex
	state   State
	machine *fsm.FSM

	now func() time.Time
}

// NewAuthenticator wires the login strategy chain. httpc supplies the
// shared transport; solver and store may be nil.
func NewAuthenticator(opts *options.PortalOptions, httpc *http.Client, solver *SolverClient, store Store) *Authenticator {
	if httpc == nil {
		httpc = &http.Client{Timeout: opts.RequestTimeout}
	}
	return &Authenticator{
		opts:       opts,
		solver:     solver,
		store:      store,
		base:       httpc,
		strategies: []loginStrategy{directLogin{}, solverLogin{}},
		machine:    newLifecycle(),
		now:        time.Now,
	}
}

// State returns a snapshot of the current session state.
func (a *Authenticator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Clone()
}

// LifecycleState returns the machine state, for diagnostics.
func (a *Authenticator) LifecycleState() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.machine.Current()
}

// valid reports whether the session can still be used without a refresh.
func (a *Authenticator) valid() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.LoggedIn && a.state.Expiry.Sub(a.now()) > a.opts.RefreshMargin
}

// EnsureValid is a no-op while the session is inside its validity margin,
// otherwise it performs a full login. Concurrent calls collapse into one
// login attempt.
func (a *Authenticator) EnsureValid(ctx context.Context) error {
	if a.valid() {
		return nil
	}

	_, err, _ := a.group.Do("login", func() (any, error) {
		// A queued caller may find the session already refreshed.
		if a.valid() {
			return nil, nil
		}
		return nil, a.login(ctx)
	})
	return err
}

// Login forces a fresh login regardless of the current state.
func (a *Authenticator) Login(ctx context.Context) error {
	_, err, _ := a.group.Do("login", func() (any, error) {
		return nil, a.login(ctx)
	})
	return err
}

// Invalidate clears the session. Called by the fetch layer when the
// portal redirects to the login page or answers with an auth error.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.machine.Can(eventInvalidate) {
		_ = a.machine.Event(context.Background(), eventInvalidate)
	}
	a.state = State{}
}

// LoadPersisted installs a previously stored session if it has not
// expired. Failures only cost us a re-login, so they are logged and
// swallowed.
func (a *Authenticator) LoadPersisted(ctx context.Context) {
	if a.store == nil {
		return
	}

	blob, err := a.store.Load(ctx)
	if err != nil {
		log.Warn("Failed to load persisted session", "err", err)
		return
	}
	if blob == nil || len(blob.Cookies) == 0 {
		return
	}
	if !blob.Expiry.After(a.now()) {
		log.Info("Persisted session already expired, will re-authenticate")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = State{
		Cookies:   blob.Cookies,
		Expiry:    blob.Expiry,
		LoggedIn:  true,
		UserAgent: blob.UserAgent,
	}
	a.machine.SetState(StateAuthenticated)
	log.Info("Restored persisted session", "expiry", blob.Expiry)
}

// login runs the strategy chain. Wrong credentials stop the chain;
// challenges and transport failures fall through to the next strategy.
func (a *Authenticator) login(ctx context.Context) error {
	a.transition(ctx, eventLogin)

	var lastErr error
	for _, s := range a.strategies {
		res, err := s.attempt(ctx, a)
		if err == nil {
			a.install(res)
			a.transition(ctx, eventSucceed)
			a.persist(ctx)
			metrics.LoginsTotal.WithLabelValues(res.via, "success").Inc()
			log.Info("Login succeeded", "via", res.via, "cookies", len(res.cookies))
			return nil
		}

		if errors.Is(err, errSkipStrategy) {
			log.Debug("Login strategy skipped", "strategy", s.name())
			continue
		}

		metrics.LoginsTotal.WithLabelValues(s.name(), "failure").Inc()

		if core.IsAuthError(err) {
			// Bad credentials stay bad on every path; do not fall through.
			a.transition(ctx, eventFail)
			return err
		}

		log.Warn("Login strategy failed, trying next", "strategy", s.name(), "err", err)
		lastErr = err
	}

	a.transition(ctx, eventFail)
	if lastErr == nil {
		lastErr = &core.ConnectionError{Op: "login",
			Err: errors.New("no usable login strategy (challenge present and no solver configured)")}
	}
	return lastErr
}

// install atomically replaces the session state after a full login.
func (a *Authenticator) install(res *loginResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = State{
		Cookies:   res.cookies,
		Expiry:    a.now().Add(a.opts.SessionValidity),
		LoggedIn:  true,
		UserAgent: res.userAgent,
	}
}

// persist saves the session blob; a failed save only means a re-login
// after the next restart.
func (a *Authenticator) persist(ctx context.Context) {
	if a.store == nil {
		return
	}

	st := a.State()
	blob := &Blob{
		Cookies:   st.Cookies,
		Expiry:    st.Expiry,
		UserAgent: st.UserAgent,
	}
	if err := a.store.Save(ctx, blob); err != nil {
		log.Warn("Failed to persist session", "err", err)
	}
}

func (a *Authenticator) transition(ctx context.Context, event string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.machine.Event(ctx, event); err != nil {
		log.Debug("Session lifecycle event rejected", "event", event, "err", err)
	}
}

func (a *Authenticator) loginURL() string {
	return strings.TrimRight(a.opts.BaseURL, "/") + a.opts.LoginPath
}

// checkLanding applies the "still on the login page means bad
// credentials" rule to the URL a login POST finally landed on.
func (a *Authenticator) checkLanding(finalURL string) error {
	switch {
	case strings.Contains(finalURL, a.opts.LoginPath):
		return &core.AuthError{Reason: "portal returned to the login page"}
	case strings.Contains(finalURL, a.opts.TrackingPath):
		return nil
	default:
		return &core.AuthError{Reason: fmt.Sprintf("unexpected landing page %s", finalURL)}
	}
}

// loginClient builds a client sharing the base transport but carrying a
// fresh cookie jar, so a failed attempt never pollutes the session.
func (a *Authenticator) loginClient(jar http.CookieJar) *http.Client {
	return &http.Client{
		Transport: a.base.Transport,
		Timeout:   a.opts.RequestTimeout,
		Jar:       jar,
	}
}
