package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aaronwang/bidding-app/shared/events"
	"github.com/aaronwang/bidding-app/shared/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSPublisher publishes auction events to NATS JetStream for archival
type NATSPublisher struct {
	js jetstream.JetStream
}

// NewNATSPublisher ensures the event stream exists and returns a publisher
func NewNATSPublisher(ctx context.Context, natsConn *nats.Conn) (*NATSPublisher, error) {
	js, err := jetstream.New(natsConn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        events.Stream,
		Description: "Auction state transitions for archival",
		Subjects:    []string{events.SubjectAll},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return &NATSPublisher{js: js}, nil
}

// PublishEvent waits for the server to acknowledge the persisted message.
// The event ID doubles as the JetStream message ID so retries are deduplicated.
func (p *NATSPublisher) PublishEvent(ctx context.Context, event *models.AuctionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, events.Subject(event.AuctionID), data, jetstream.WithMsgID(event.EventID))
	if err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}
	return nil
}
