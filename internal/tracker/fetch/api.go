package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
	"github.com/fleetlink-io/fleetlink/internal/tracker/session"
	"github.com/fleetlink-io/fleetlink/pkg/log"
	"github.com/fleetlink-io/fleetlink/pkg/options"
)

// apiStrategy probes the candidate XHR endpoints the portal's own
// frontend calls. The tracking endpoints want a form-encoded POST with a
// throwaway body; endpoints answering 405 are retried as plain GETs.
type apiStrategy struct {
	opts  *options.PortalOptions
	httpc *http.Client
}

func newAPIStrategy(opts *options.PortalOptions, httpc *http.Client) *apiStrategy {
	return &apiStrategy{opts: opts, httpc: httpc}
}

func (s *apiStrategy) Name() string { return "api" }

func (s *apiStrategy) Fetch(ctx context.Context, st session.State) (core.FetchResult, error) {
	var lastErr error
	for _, path := range s.opts.DataPaths {
		result, err := s.probe(ctx, st, path)
		if err != nil {
			if err == core.ErrSessionExpired {
				return nil, err
			}
			log.Debug("Endpoint probe failed", "path", path, "err", err)
			lastErr = err
			continue
		}
		if len(result) > 0 {
			return result, nil
		}
	}
	return nil, lastErr
}

func (s *apiStrategy) probe(ctx context.Context, st session.State, path string) (core.FetchResult, error) {
	resp, err := s.request(ctx, st, http.MethodPost, path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusMethodNotAllowed {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp, err = s.request(ctx, st, http.MethodGet, path); err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if sessionRejected(s.opts, resp) {
		return nil, core.ErrSessionExpired
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &core.ConnectionError{Op: "position endpoint read", Err: err}
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		// HTML where JSON was expected: not this endpoint's day.
		return nil, &core.ProtocolError{Op: "position endpoint " + path,
			Err: fmt.Errorf("response is not JSON: %w", err)}
	}

	return Normalize(raw, s.Name()), nil
}

func (s *apiStrategy) request(ctx context.Context, st session.State, method, path string) (*http.Response, error) {
	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader("dummy=1")
	}

	req, err := http.NewRequestWithContext(ctx, method, portalURL(s.opts, path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build position request: %w", err)
	}
	attachSession(req, st)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", portalURL(s.opts, s.opts.TrackingPath))
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, &core.ConnectionError{Op: "position endpoint " + path, Err: err}
	}
	return resp, nil
}
