package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aaronwang/bidding-app/shared/events"
	"github.com/aaronwang/bidding-app/shared/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DurableName identifies the archival consumer on the event stream
const DurableName = "archival-worker"

// EventStore persists archived events
type EventStore interface {
	InsertEvent(ctx context.Context, event *models.AuctionEvent) error
	InsertSettlement(ctx context.Context, s *models.Settlement) error
}

// NATSConsumer consumes auction events from JetStream and persists them
type NATSConsumer struct {
	conn  *nats.Conn
	js    jetstream.JetStream
	store EventStore
	log   *slog.Logger
}

// NewNATSConsumer creates a new NATS consumer
func NewNATSConsumer(natsURL string, store EventStore, log *slog.Logger) (*NATSConsumer, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NATSConsumer{
		conn:  conn,
		js:    js,
		store: store,
		log:   log,
	}, nil
}

// Start consumes events until ctx is cancelled. Messages are acknowledged
// only after they are persisted.
func (c *NATSConsumer) Start(ctx context.Context) error {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, events.Stream, jetstream.ConsumerConfig{
		Durable:       DurableName,
		FilterSubject: events.SubjectAll,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    10,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	defer cc.Stop()

	c.log.Info("consuming auction events", "stream", events.Stream, "subject", events.SubjectAll)

	// Keep consumer running until context is cancelled
	<-ctx.Done()
	return nil
}

// acker is the part of jetstream.Msg the handler needs
type acker interface {
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

// handleMessage processes a single auction event message
func (c *NATSConsumer) handleMessage(ctx context.Context, msg acker) {
	var event models.AuctionEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		c.log.Error("dropping undecodable event", "error", err)
		msg.Term()
		return
	}

	// Create a timeout context for database operations
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.persistEvent(dbCtx, &event); err != nil {
		c.log.Warn("failed to persist event, will retry",
			"event", event.EventID, "error", err)
		msg.Nak()
		return
	}

	c.log.Info("persisted auction event",
		"event", event.EventID, "auction", event.AuctionID, "type", event.Type, "amount", event.Amount)
	msg.Ack()
}

// persistEvent writes the event, and the settlement for settled events. The
// settlement is keyed by listing so a listing archives once even if it was
// settled again after a restart.
func (c *NATSConsumer) persistEvent(ctx context.Context, event *models.AuctionEvent) error {
	if err := c.store.InsertEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	if event.Type != models.EventSettled {
		return nil
	}
	id := event.ListingID
	if id == "" {
		id = event.EventID
	}
	settlement := &models.Settlement{
		ID:        id,
		AuctionID: event.AuctionID,
		Product:   event.Product,
		Seller:    event.Seller,
		Buyer:     event.Bidder,
		Amount:    event.Amount,
		SettledAt: event.Timestamp,
	}
	if err := c.store.InsertSettlement(ctx, settlement); err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

// Close closes the NATS connection
func (c *NATSConsumer) Close() error {
	c.conn.Close()
	return nil
}
