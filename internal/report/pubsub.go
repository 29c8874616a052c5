package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"
)

// PubSubReporter publishes each report as a JSON message.
type PubSubReporter struct {
	topic *pubsub.Topic
}

// NewPubSubReporter creates a reporter for the provided topic.
func NewPubSubReporter(topic *pubsub.Topic) *PubSubReporter {
	return &PubSubReporter{topic: topic}
}

// Report implements Reporter. The message carries site_id and run_id
// attributes so subscribers can filter without decoding.
func (p *PubSubReporter) Report(ctx context.Context, r RunReport) error {
	if p.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"site_id": strconv.Itoa(r.SiteID),
			"run_id":  r.RunID,
		},
	}
	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	return nil
}

// Close flushes pending publishes.
func (p *PubSubReporter) Close() {
	if p.topic != nil {
		p.topic.Stop()
	}
}
