package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
	"github.com/fleetlink-io/fleetlink/internal/tracker/session"
	"github.com/fleetlink-io/fleetlink/pkg/options"
)

// pageStrategy scrapes the map/dashboard page itself: vehicle arrays
// assigned to well-known variables in inline scripts, and DOM elements
// carrying coordinate data-attributes.
type pageStrategy struct {
	opts  *options.PortalOptions
	httpc *http.Client
}

func newPageStrategy(opts *options.PortalOptions, httpc *http.Client) *pageStrategy {
	return &pageStrategy{opts: opts, httpc: httpc}
}

func (s *pageStrategy) Name() string { return "page" }

func (s *pageStrategy) Fetch(ctx context.Context, st session.State) (core.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, portalURL(s.opts, s.opts.MapPath), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build page request: %w", err)
	}
	attachSession(req, st)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, &core.ConnectionError{Op: "dashboard page fetch", Err: err}
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
		return nil, &core.ConnectionError{Op: "dashboard page read", Err: err}
	}

	return extractFromPage(string(body), s.Name())
}

// scriptArrayPatterns match vehicle arrays assigned to the variable names
// portal builds have used over time, e.g. `var vehicles = [...]`.
var scriptArrayPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)(?:var|let|const)\s+(?:vehicles|positions|devices|units|markers|assets)\s*=\s*(\[.*?\])\s*;`),
	regexp.MustCompile(`(?is)(?:vehicles|positions|devices|units|markers)\s*:\s*(\[\s*\{.*?\}\s*\])`),
	regexp.MustCompile(`(?is)"Points"\s*:\s*(\[\s*\{.*?\}\s*\])`),
}

// extractFromPage pulls vehicle records out of raw dashboard HTML. Shared
// by the direct page strategy and the solver-rendered fallback.
func extractFromPage(html, source string) (core.FetchResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &core.ProtocolError{Op: "dashboard page parse", Err: err}
	}

	out := core.FetchResult{}

	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		text := sel.Text()
		for _, pattern := range scriptArrayPatterns {
			for _, m := range pattern.FindAllStringSubmatch(text, -1) {
				var raw any
				if err := json.Unmarshal([]byte(m[1]), &raw); err != nil {
					continue
				}
				for id, rec := range Normalize(raw, source) {
					out[id] = rec
				}
			}
		}
	})

	doc.Find("[data-lat][data-lng], [data-latitude][data-longitude]").Each(func(_ int, sel *goquery.Selection) {
		if rec, ok := recordFromAttrs(sel, source); ok {
			out[rec.ID] = rec
		}
	})

	return out, nil
}

func recordFromAttrs(sel *goquery.Selection, source string) (core.VehicleRecord, bool) {
	lat, latOK := attrFloat(sel, "data-lat", "data-latitude")
	lng, lngOK := attrFloat(sel, "data-lng", "data-longitude", "data-lon")
	if !latOK || !lngOK || !core.ValidCoordinates(lat, lng) {
		return core.VehicleRecord{}, false
	}

	id := attrString(sel, "data-id", "data-device-id", "data-asset-id")
	name := attrString(sel, "data-name", "data-label", "title")
	switch {
	case id == "" && name == "":
		return core.VehicleRecord{}, false
	case id == "":
		id = name
	case name == "":
		name = id
	}

	rec := core.VehicleRecord{
		ID:        core.Slug(id),
		Name:      name,
		Latitude:  lat,
		Longitude: lng,
		Source:    source,
	}
	if speed, ok := attrFloat(sel, "data-speed"); ok {
		rec.Speed = &speed
	}
	if heading, ok := attrFloat(sel, "data-heading", "data-course"); ok {
		rec.Heading = &heading
	}
	return rec, true
}

func attrFloat(sel *goquery.Selection, names ...string) (float64, bool) {
	for _, name := range names {
		if v, ok := sel.Attr(name); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func attrString(sel *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := sel.Attr(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
