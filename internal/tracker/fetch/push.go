package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
	"github.com/fleetlink-io/fleetlink/internal/tracker/session"
	"github.com/fleetlink-io/fleetlink/pkg/log"
	"github.com/fleetlink-io/fleetlink/pkg/options"
)

const (
	pushProtocolVersion = "1.5"
	pushTransport       = "longPolling"

	// maxPollAttempts bounds how many long-poll rounds one fetch cycle
	// spends waiting for a position batch before giving up.
	maxPollAttempts = 3
)

// pushStrategy drives the portal's realtime long-polling transport
// through its negotiate/connect/start/poll handshake and collects
// whatever position batches arrive within a bounded number of polls.
// Batches are deduplicated last-seen-per-id.
type pushStrategy struct {
	opts  *options.PortalOptions
	httpc *http.Client
}

func newPushStrategy(opts *options.PortalOptions, httpc *http.Client) *pushStrategy {
	return &pushStrategy{opts: opts, httpc: httpc}
}

func (s *pushStrategy) Name() string { return "push" }

type negotiateResponse struct {
	ConnectionToken string `json:"ConnectionToken"`
	ConnectionID    string `json:"ConnectionId"`
}

// pushEnvelope is one long-poll response: a resume cursor plus a batch
// of hub messages.
type pushEnvelope struct {
	Cursor   string        `json:"C"`
	Messages []pushMessage `json:"M"`
}

type pushMessage struct {
	Hub    string `json:"H"`
	Method string `json:"M"`
	Args   []any  `json:"A"`
}

func (s *pushStrategy) Fetch(ctx context.Context, st session.State) (core.FetchResult, error) {
	var neg negotiateResponse
	if err := s.call(ctx, st, "/negotiate", nil, &neg); err != nil {
		return nil, err
	}
	if neg.ConnectionToken == "" {
		return nil, &core.ProtocolError{Op: "push negotiate",
			Err: fmt.Errorf("no connection token in response")}
	}

	token := url.Values{"connectionToken": {neg.ConnectionToken}}

	var first pushEnvelope
	if err := s.call(ctx, st, "/connect", token, &first); err != nil {
		return nil, err
	}
	if err := s.call(ctx, st, "/start", token, &json.RawMessage{}); err != nil {
		return nil, err
	}

	out := core.FetchResult{}
	s.collect(&first, out)

	cursor := first.Cursor
	for attempt := 0; attempt < maxPollAttempts && len(out) == 0; attempt++ {
		params := url.Values{"connectionToken": {neg.ConnectionToken}}
		if cursor != "" {
			params.Set("messageId", cursor)
		}

		var envelope pushEnvelope
		if err := s.call(ctx, st, "/poll", params, &envelope); err != nil {
			if err == core.ErrSessionExpired {
				return nil, err
			}
			log.Debug("Push poll attempt failed", "attempt", attempt+1, "err", err)
			break
		}
		s.collect(&envelope, out)
		if envelope.Cursor != "" {
			cursor = envelope.Cursor
		}
	}

	return out, nil
}

// collect extracts position batches from a poll envelope's message
// arguments. Later batches overwrite earlier ones per vehicle id.
func (s *pushStrategy) collect(envelope *pushEnvelope, out core.FetchResult) {
	for _, msg := range envelope.Messages {
		for _, arg := range msg.Args {
			for id, rec := range Normalize(arg, s.Name()) {
				out[id] = rec
			}
		}
	}
}

func (s *pushStrategy) call(ctx context.Context, st session.State, step string, params url.Values, into any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("clientProtocol", pushProtocolVersion)
	if step != "/negotiate" {
		params.Set("transport", pushTransport)
	}

	endpoint := portalURL(s.opts, s.opts.PushPath) + step + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	attachSession(req, st)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return &core.ConnectionError{Op: "push" + step, Err: err}
	}
	defer resp.Body.Close()

	if sessionRejected(s.opts, resp) {
		return core.ErrSessionExpired
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &core.ProtocolError{Op: "push" + step,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &core.ConnectionError{Op: "push" + step, Err: err}
	}
	if err := json.Unmarshal(body, into); err != nil {
		return &core.ProtocolError{Op: "push" + step, Err: err}
	}
	return nil
}
