// Package fetch discovers current vehicle positions through whichever
// channel the portal happens to expose: candidate XHR endpoints, data
// embedded in the dashboard page, the realtime push transport, or a
// solver-rendered page. Strategies run in fixed priority order and the
// first non-empty result wins.
package fetch

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/fleetlink-io/fleetlink/internal/pkg/metrics"
	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
	"github.com/fleetlink-io/fleetlink/internal/tracker/session"
	"github.com/fleetlink-io/fleetlink/pkg/log"
	"github.com/fleetlink-io/fleetlink/pkg/options"
)

const fallbackUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Strategy is one way of discovering vehicle positions. An empty result
// with a nil error means "this channel had nothing", letting the chain
// move on; core.ErrSessionExpired aborts the chain for a re-login.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, st session.State) (core.FetchResult, error)
}

// Fetcher runs the discovery strategy chain.
type Fetcher struct {
	strategies []Strategy
}

// NewFetcher assembles the chain in priority order. The push strategy is
// included only when a push path is configured, the rendered strategy
// only when a solver is available.
func NewFetcher(opts *options.PortalOptions, httpc *http.Client, solver *session.SolverClient) *Fetcher {
	strategies := []Strategy{
		newAPIStrategy(opts, httpc),
		newPageStrategy(opts, httpc),
	}
	if opts.PushPath != "" {
		strategies = append(strategies, newPushStrategy(opts, httpc))
	}
	if solver != nil {
		strategies = append(strategies, newRenderedStrategy(opts, solver))
	}
	return &Fetcher{strategies: strategies}
}

// Fetch tries each strategy in order and returns the first non-empty
// result along with the name of the strategy that produced it. Session
// expiry surfaces immediately; other strategy errors are logged and the
// chain continues. When every channel comes up empty the result is empty
// but not an error, unless some strategy failed, in which case the last
// failure is returned so the caller can tell "quiet portal" from
// "broken portal".
func (f *Fetcher) Fetch(ctx context.Context, st session.State) (core.FetchResult, string, error) {
	var lastErr error
	for _, s := range f.strategies {
		result, err := s.Fetch(ctx, st)
		if err != nil {
			if errors.Is(err, core.ErrSessionExpired) {
				return nil, s.Name(), err
			}
			log.Warn("Discovery strategy failed", "strategy", s.Name(), "err", err)
			lastErr = err
			continue
		}
		if len(result) > 0 {
			metrics.StrategyHitsTotal.WithLabelValues(s.Name()).Inc()
			return result, s.Name(), nil
		}
		log.Debug("Discovery strategy returned no positions", "strategy", s.Name())
	}
	if lastErr != nil {
		return nil, "", lastErr
	}
	return core.FetchResult{}, "", nil
}

// Strategies returns the chain's strategy names, for diagnostics.
func (f *Fetcher) Strategies() []string {
	names := make([]string, 0, len(f.strategies))
	for _, s := range f.strategies {
		names = append(names, s.Name())
	}
	return names
}

// attachSession decorates a portal request with the session cookies and
// the user-agent the session was established under.
func attachSession(req *http.Request, st session.State) {
	ua := st.UserAgent
	if ua == "" {
		ua = fallbackUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for name, value := range st.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

// sessionRejected recognizes the two ways the portal expires a session
// under a request: a redirect back to the login page, or an auth status.
func sessionRejected(opts *options.PortalOptions, resp *http.Response) bool {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return true
	}
	final := resp.Request.URL.Path
	return strings.Contains(final, opts.LoginPath) || strings.Contains(final, "/Login")
}

func portalURL(opts *options.PortalOptions, path string) string {
	return strings.TrimRight(opts.BaseURL, "/") + path
}
