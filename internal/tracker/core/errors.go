package core

import (
	"errors"
	"fmt"
)

// ErrSessionExpired signals that a fetch hit a login redirect or auth
// status code. The orchestrator responds with one forced re-login, never
// more, within a single fetch call.
var ErrSessionExpired = errors.New("session expired")

// AuthError means the portal rejected the credentials. Retrying without
// new credentials is pointless, so callers must surface a re-auth prompt
// instead of backing off.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// ConnectionError means the portal or the solver proxy could not be
// reached (DNS, dial, timeout). Always retryable.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError means the portal answered with an unexpected shape
// (HTML where JSON was expected, missing fields, parse failures).
// Upstream page structure changes at will, so these are treated as
// transient: logged, then an empty result, never a crash.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error during %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is a credential rejection.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsConnectionError reports whether err is a reachability failure.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
