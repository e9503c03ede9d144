package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
	"github.com/fleetlink-io/fleetlink/pkg/mqtt"
)

// Publisher republishes each snapshot to the MQTT broker: one retained
// message per vehicle plus a retained fleet status message, so late
// subscribers immediately see the last known positions.
type Publisher struct {
	client    mqtt.Client
	topicRoot string
}

func NewPublisher(client mqtt.Client, topicRoot string) *Publisher {
	return &Publisher{client: client, topicRoot: topicRoot}
}

func (p *Publisher) Name() string { return "mqtt" }

type fleetStatus struct {
	Vehicles  int       `json:"vehicles"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Publisher) Publish(ctx context.Context, snapshot core.FetchResult) error {
	for id, rec := range snapshot {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal vehicle %s: %w", id, err)
		}
		topic := fmt.Sprintf("%s/positions/%s", p.topicRoot, id)
		if err := p.client.Publish(ctx, topic, 1, true, payload); err != nil {
			return fmt.Errorf("failed to publish %s: %w", topic, err)
		}
	}

	status, err := json.Marshal(fleetStatus{Vehicles: len(snapshot), UpdatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.topicRoot+"/status", 1, true, status)
}
