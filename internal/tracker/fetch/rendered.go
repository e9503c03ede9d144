package fetch

import (
	"context"
	"strings"

	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
	"github.com/fleetlink-io/fleetlink/internal/tracker/session"
	"github.com/fleetlink-io/fleetlink/pkg/options"
)

// renderedStrategy is the last resort: have the challenge-solving proxy
// run the JS-heavy dashboard in a real browser and scrape the rendered
// page with the same extractors the direct page strategy uses.
type renderedStrategy struct {
	opts   *options.PortalOptions
	solver *session.SolverClient
}

func newRenderedStrategy(opts *options.PortalOptions, solver *session.SolverClient) *renderedStrategy {
	return &renderedStrategy{opts: opts, solver: solver}
}

func (s *renderedStrategy) Name() string { return "rendered" }

func (s *renderedStrategy) Fetch(ctx context.Context, _ session.State) (core.FetchResult, error) {
	solution, err := s.solver.Get(ctx, "", portalURL(s.opts, s.opts.MapPath))
	if err != nil {
		return nil, err
	}

	if strings.Contains(solution.URL, s.opts.LoginPath) {
		return nil, core.ErrSessionExpired
	}

	return extractFromPage(solution.Response, s.Name())
}
