// Package session produces and maintains an authenticated portal session:
// cookies, their expiry, and the login strategies that harvest them.
package session

import (
	"context"
	"maps"
	"time"

	"github.com/looplab/fsm"

	"github.com/fleetlink-io/fleetlink/pkg/log"
)

// Session lifecycle states.
const (
	StateUnauthenticated = "unauthenticated"
	StateAuthenticating  = "authenticating"
	StateAuthenticated   = "authenticated"
)

// Session lifecycle events.
const (
	eventLogin      = "login"
	eventSucceed    = "succeed"
	eventFail       = "fail"
	eventInvalidate = "invalidate"
)

// State is the authenticated-session snapshot. It is replaced atomically
// by a successful login and cleared by invalidation; there is no partial
// mutation in between.
type State struct {
	Cookies   map[string]string
	Expiry    time.Time
	LoggedIn  bool
	UserAgent string
}

// Clone returns a deep copy so readers never alias the live cookie map.
func (s State) Clone() State {
	out := s
	out.Cookies = maps.Clone(s.Cookies)
	return out
}

// newLifecycle builds the state machine guarding session transitions.
// Authenticated is only reachable through a completed login.
func newLifecycle() *fsm.FSM {
	return fsm.NewFSM(
		StateUnauthenticated,
		fsm.Events{
			{Name: eventLogin, Src: []string{StateUnauthenticated, StateAuthenticated}, Dst: StateAuthenticating},
			{Name: eventSucceed, Src: []string{StateAuthenticating}, Dst: StateAuthenticated},
			{Name: eventFail, Src: []string{StateAuthenticating}, Dst: StateUnauthenticated},
			{Name: eventInvalidate, Src: []string{StateAuthenticated, StateAuthenticating}, Dst: StateUnauthenticated},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debug("Session state transition", "from", e.Src, "to", e.Dst)
			},
		},
	)
}
