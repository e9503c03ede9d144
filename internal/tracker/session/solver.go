package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
)

// Solver commands understood by the challenge-solving proxy.
const (
	cmdSessionCreate  = "sessions.create"
	cmdSessionDestroy = "sessions.destroy"
	cmdRequestGet     = "request.get"
	cmdRequestPost    = "request.post"
)

// solverRequest is the JSON command envelope sent to the proxy.
type solverRequest struct {
	Cmd        string `json:"cmd"`
	URL        string `json:"url,omitempty"`
	Session    string `json:"session,omitempty"`
	PostData   string `json:"postData,omitempty"`
	MaxTimeout int    `json:"maxTimeout,omitempty"`
}

// solverCookie is one resolved cookie in a solver solution.
type solverCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// solverSolution carries the rendered page the proxy obtained after
// passing the challenge.
type solverSolution struct {
	URL       string         `json:"url"`
	Status    int            `json:"status"`
	Response  string         `json:"response"`
	Cookies   []solverCookie `json:"cookies"`
	UserAgent string         `json:"userAgent"`
}

type solverResponse struct {
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	Solution *solverSolution `json:"solution"`
}

// SolverClient talks to a FlareSolverr-compatible browser-rendering proxy.
type SolverClient struct {
	endpoint   string
	maxTimeout time.Duration
	httpc      *http.Client
}

// NewSolverClient creates a SolverClient for the given command endpoint.
func NewSolverClient(endpoint string, maxTimeout time.Duration, httpc *http.Client) *SolverClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: maxTimeout + 15*time.Second}
	}
	return &SolverClient{
		endpoint:   endpoint,
		maxTimeout: maxTimeout,
		httpc:      httpc,
	}
}

// NewSessionName returns a unique browser-session identifier.
func (c *SolverClient) NewSessionName() string {
	return "fleetlink-" + uuid.NewString()
}

// CreateSession opens a persistent browser session on the proxy so the
// GET/POST pair of a login shares cookies.
func (c *SolverClient) CreateSession(ctx context.Context, name string) error {
	_, err := c.do(ctx, &solverRequest{Cmd: cmdSessionCreate, Session: name})
	return err
}

// DestroySession releases the browser session. Failures are not fatal;
// the proxy reaps idle sessions on its own.
func (c *SolverClient) DestroySession(ctx context.Context, name string) error {
	_, err := c.do(ctx, &solverRequest{Cmd: cmdSessionDestroy, Session: name})
	return err
}

// Get renders url through the proxy and returns the solution.
func (c *SolverClient) Get(ctx context.Context, session, url string) (*solverSolution, error) {
	return c.do(ctx, &solverRequest{
		Cmd:        cmdRequestGet,
		URL:        url,
		Session:    session,
		MaxTimeout: int(c.maxTimeout.Milliseconds()),
	})
}

// Post submits form-encoded postData to url through the proxy.
func (c *SolverClient) Post(ctx context.Context, session, url, postData string) (*solverSolution, error) {
	return c.do(ctx, &solverRequest{
		Cmd:        cmdRequestPost,
		URL:        url,
		Session:    session,
		PostData:   postData,
		MaxTimeout: int(c.maxTimeout.Milliseconds()),
	})
}

func (c *SolverClient) do(ctx context.Context, sreq *solverRequest) (*solverSolution, error) {
	body, err := json.Marshal(sreq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal solver request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build solver request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &core.ConnectionError{Op: "solver " + sreq.Cmd, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.ConnectionError{Op: "solver " + sreq.Cmd, Err: err}
	}

	var sresp solverResponse
	if err := json.Unmarshal(data, &sresp); err != nil {
		return nil, &core.ProtocolError{Op: "solver " + sreq.Cmd, Err: err}
	}

	if sresp.Status != "ok" {
		return nil, &core.ProtocolError{Op: "solver " + sreq.Cmd,
			Err: fmt.Errorf("solver returned %q: %s", sresp.Status, sresp.Message)}
	}

	return sresp.Solution, nil
}

// CookieMap flattens the solution cookies into the session cookie shape.
func (s *solverSolution) CookieMap() map[string]string {
	out := make(map[string]string, len(s.Cookies))
	for _, c := range s.Cookies {
		out[c.Name] = c.Value
	}
	return out
}
