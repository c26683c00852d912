package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aaronwang/bidding-app/shared/events"
	"github.com/aaronwang/bidding-app/shared/models"
	"github.com/redis/go-redis/v9"
)

// Subscriber wraps Redis Pub/Sub functionality
type Subscriber struct {
	client *redis.Client
	pubsub *redis.PubSub
	log    *slog.Logger
}

// NewSubscriber creates a new Redis Pub/Sub subscriber
func NewSubscriber(addr, password string, db int, log *slog.Logger) (*Subscriber, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Subscriber{
		client: rdb,
		log:    log,
	}, nil
}

// SubscribeToPattern subscribes to channels matching pattern, e.g.
// events.ChannelPattern for every auction
func (s *Subscriber) SubscribeToPattern(ctx context.Context, pattern string) error {
	s.pubsub = s.client.PSubscribe(ctx, pattern)
	_, err := s.pubsub.Receive(ctx)
	return err
}

// Listen starts listening for messages and sends them to the provided channel
// This is a blocking operation - run in a goroutine
func (s *Subscriber) Listen(ctx context.Context, messageChan chan<- *Message) error {
	if s.pubsub == nil {
		return fmt.Errorf("not subscribed to any channel")
	}

	ch := s.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event models.AuctionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.log.Warn("failed to parse message", "channel", msg.Channel, "error", err)
				continue
			}

			auctionID := events.AuctionIDFromChannel(msg.Channel)
			if auctionID == "" {
				auctionID = event.AuctionID
			}

			select {
			case messageChan <- &Message{AuctionID: auctionID, Payload: msg.Payload, Event: event}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Message represents a parsed Pub/Sub message
type Message struct {
	AuctionID string
	Payload   string // Raw JSON payload
	Event     models.AuctionEvent
}

// Close closes the subscriber
func (s *Subscriber) Close() error {
	if s.pubsub != nil {
		s.pubsub.Close()
	}
	return s.client.Close()
}
