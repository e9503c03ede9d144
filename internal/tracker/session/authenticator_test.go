package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
	"github.com/fleetlink-io/fleetlink/pkg/options"
)

// fakePortal emulates the login flow of the tracking portal: a form page
// with an anti-forgery token, and a POST that redirects to /Tracking on
// valid credentials or back to the login page otherwise.
type fakePortal struct {
	mu        sync.Mutex
	requests  int
	challenge bool
}

func (p *fakePortal) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

func (p *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.requests++
	challenge := p.challenge
	p.mu.Unlock()

	switch {
	case r.URL.Path == "/Account/Login" && r.Method == http.MethodGet:
		if challenge {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("<title>Just a moment...</title>"))
			return
		}
		w.Write([]byte(loginPageHTML))

	case r.URL.Path == "/Account/Login" && r.Method == http.MethodPost:
		r.ParseForm()
		if r.PostFormValue("__RequestVerificationToken") != "abc123" ||
			r.PostFormValue("Email") != "driver@example.com" ||
			r.PostFormValue("Password") != "hunter2" {
			http.Redirect(w, r, "/Account/Login", http.StatusFound)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: ".ASPXAUTH", Value: "session-token", Path: "/"})
		http.Redirect(w, r, "/Tracking", http.StatusFound)

	case strings.HasPrefix(r.URL.Path, "/Tracking"):
		w.Write([]byte("<html><body>map</body></html>"))

	default:
		http.NotFound(w, r)
	}
}

func testPortalOptions(baseURL string) *options.PortalOptions {
	o := options.NewPortalOptions()
	o.BaseURL = baseURL
	o.Username = "driver@example.com"
	o.Password = "hunter2"
	return o
}

func TestDirectLoginSuccess(t *testing.T) {
	portal := &fakePortal{}
	srv := httptest.NewServer(portal)
	defer srv.Close()

	opts := testPortalOptions(srv.URL)
	a := NewAuthenticator(opts, srv.Client(), nil, nil)

	require.NoError(t, a.Login(context.Background()))

	st := a.State()
	assert.True(t, st.LoggedIn)
	assert.Equal(t, "session-token", st.Cookies[".ASPXAUTH"])
	assert.WithinDuration(t, time.Now().Add(opts.SessionValidity), st.Expiry, time.Minute)
	assert.Equal(t, StateAuthenticated, a.LifecycleState())
}

func TestDirectLoginWrongPassword(t *testing.T) {
	portal := &fakePortal{}
	srv := httptest.NewServer(portal)
	defer srv.Close()

	opts := testPortalOptions(srv.URL)
	opts.Password = "wrong"
	a := NewAuthenticator(opts, srv.Client(), nil, nil)

	err := a.Login(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsAuthError(err))

	st := a.State()
	assert.False(t, st.LoggedIn)
	assert.Empty(t, st.Cookies)
	assert.Equal(t, StateUnauthenticated, a.LifecycleState())
}

func TestEnsureValidSkipsFreshSession(t *testing.T) {
	portal := &fakePortal{}
	srv := httptest.NewServer(portal)
	defer srv.Close()

	a := NewAuthenticator(testPortalOptions(srv.URL), srv.Client(), nil, nil)

	require.NoError(t, a.EnsureValid(context.Background()))
	seen := portal.count()
	require.Greater(t, seen, 0)

	// Inside the validity margin no request should leave the process.
	require.NoError(t, a.EnsureValid(context.Background()))
	assert.Equal(t, seen, portal.count())
}

func TestEnsureValidRefreshesNearExpiry(t *testing.T) {
	portal := &fakePortal{}
	srv := httptest.NewServer(portal)
	defer srv.Close()

	a := NewAuthenticator(testPortalOptions(srv.URL), srv.Client(), nil, nil)
	require.NoError(t, a.Login(context.Background()))

	// Move the clock to just inside the refresh margin.
	expiry := a.State().Expiry
	a.now = func() time.Time { return expiry.Add(-time.Minute) }

	before := portal.count()
	require.NoError(t, a.EnsureValid(context.Background()))
	assert.Greater(t, portal.count(), before)
	assert.True(t, a.State().Expiry.After(expiry))
}

// newFakeSolver emulates the challenge-solving proxy: it renders the login
// page, replays the POST inside its browser session, and hands back the
// resolved cookies.
func newFakeSolver(t *testing.T, loginURL string, cmds *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sreq solverRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sreq))

		*cmds = append(*cmds, sreq.Cmd)

		resp := solverResponse{Status: "ok"}
		switch sreq.Cmd {
		case cmdRequestGet:
			resp.Solution = &solverSolution{
				URL:       loginURL,
				Status:    http.StatusOK,
				Response:  loginPageHTML,
				UserAgent: "solver-ua",
			}
		case cmdRequestPost:
			values, err := url.ParseQuery(sreq.PostData)
			require.NoError(t, err)
			require.Equal(t, "hunter2", values.Get("Password"))
			require.Equal(t, "abc123", values.Get("__RequestVerificationToken"))
			resp.Solution = &solverSolution{
				URL:    strings.TrimSuffix(loginURL, "/Account/Login") + "/Tracking",
				Status: http.StatusOK,
				Cookies: []solverCookie{
					{Name: "cf_clearance", Value: "cleared"},
					{Name: ".ASPXAUTH", Value: "solver-session"},
				},
				UserAgent: "solver-ua",
			}
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestSolverFallbackOnChallenge(t *testing.T) {
	portal := &fakePortal{challenge: true}
	srv := httptest.NewServer(portal)
	defer srv.Close()

	var cmds []string
	solverSrv := newFakeSolver(t, srv.URL+"/Account/Login", &cmds)
	defer solverSrv.Close()

	solver := NewSolverClient(solverSrv.URL, 10*time.Second, solverSrv.Client())
	a := NewAuthenticator(testPortalOptions(srv.URL), srv.Client(), solver, nil)

	require.NoError(t, a.Login(context.Background()))

	st := a.State()
	assert.True(t, st.LoggedIn)
	assert.Equal(t, "cleared", st.Cookies["cf_clearance"])
	assert.Equal(t, "solver-session", st.Cookies[".ASPXAUTH"])
	assert.Equal(t, "solver-ua", st.UserAgent)

	// The browser session on the proxy must be released afterwards.
	assert.Contains(t, cmds, cmdSessionCreate)
	assert.Contains(t, cmds, cmdSessionDestroy)
}

func TestChallengeWithoutSolver(t *testing.T) {
	portal := &fakePortal{challenge: true}
	srv := httptest.NewServer(portal)
	defer srv.Close()

	a := NewAuthenticator(testPortalOptions(srv.URL), srv.Client(), nil, nil)

	err := a.Login(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsConnectionError(err))
	assert.False(t, core.IsAuthError(err))
	assert.Equal(t, StateUnauthenticated, a.LifecycleState())
}

func TestInvalidateClearsSession(t *testing.T) {
	portal := &fakePortal{}
	srv := httptest.NewServer(portal)
	defer srv.Close()

	a := NewAuthenticator(testPortalOptions(srv.URL), srv.Client(), nil, nil)
	require.NoError(t, a.Login(context.Background()))

	a.Invalidate()

	st := a.State()
	assert.False(t, st.LoggedIn)
	assert.Empty(t, st.Cookies)
	assert.Equal(t, StateUnauthenticated, a.LifecycleState())
}

func TestPersistAndRestore(t *testing.T) {
	portal := &fakePortal{}
	srv := httptest.NewServer(portal)
	defer srv.Close()

	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	opts := testPortalOptions(srv.URL)

	a := NewAuthenticator(opts, srv.Client(), nil, store)
	require.NoError(t, a.Login(context.Background()))

	// A new process picks up the stored session without logging in again.
	restored := NewAuthenticator(opts, srv.Client(), nil, store)
	restored.LoadPersisted(context.Background())

	before := portal.count()
	require.NoError(t, restored.EnsureValid(context.Background()))
	assert.Equal(t, before, portal.count())

	st := restored.State()
	assert.True(t, st.LoggedIn)
	assert.Equal(t, "session-token", st.Cookies[".ASPXAUTH"])
	assert.Equal(t, StateAuthenticated, restored.LifecycleState())
}
