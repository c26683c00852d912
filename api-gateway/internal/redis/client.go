package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aaronwang/bidding-app/shared/events"
	"github.com/aaronwang/bidding-app/shared/models"
	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis client with auction snapshot and event operations
type Client struct {
	client *redis.Client
	// Lua script for atomic versioned snapshot writes
	saveScript *redis.Script
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newClient(rdb), nil
}

func newClient(rdb *redis.Client) *Client {
	// Snapshots are written after the operation commits, possibly out of
	// order; only a strictly newer version may replace the stored one.
	saveScript := redis.NewScript(`
		-- KEYS[1]: auction:{id}:version
		-- KEYS[2]: auction:{id}:snapshot
		-- ARGV[1]: snapshot version
		-- ARGV[2]: snapshot JSON

		local current = tonumber(redis.call('GET', KEYS[1]) or '-1')
		local incoming = tonumber(ARGV[1])

		if incoming > current then
			redis.call('SET', KEYS[1], ARGV[1])
			redis.call('SET', KEYS[2], ARGV[2])
			return {1, current}
		end
		return {0, current}
	`)

	return &Client{
		client:     rdb,
		saveScript: saveScript,
	}
}

// SaveResult reports whether a snapshot replaced the stored one
type SaveResult struct {
	Stored          bool
	PreviousVersion int64
}

// SaveSnapshot stores the auction record unless a newer version is stored
func (c *Client) SaveSnapshot(ctx context.Context, a models.Auction) (*SaveResult, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	keys := []string{versionKey(a.ID), snapshotKey(a.ID)}
	result, err := c.saveScript.Run(ctx, c.client, keys, a.Version, data).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to execute save script: %w", err)
	}

	// Result is [stored_flag, previous_version]
	resultArray, ok := result.([]interface{})
	if !ok || len(resultArray) != 2 {
		return nil, fmt.Errorf("unexpected script result format")
	}
	stored, _ := resultArray[0].(int64)
	previous, _ := resultArray[1].(int64)

	return &SaveResult{
		Stored:          stored == 1,
		PreviousVersion: previous,
	}, nil
}

// LoadSnapshot returns the stored record for auctionID, or nil if none
func (c *Client) LoadSnapshot(ctx context.Context, auctionID string) (*models.Auction, error) {
	data, err := c.client.Get(ctx, snapshotKey(auctionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var a models.Auction
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &a, nil
}

// PublishEvent publishes an auction event to Redis Pub/Sub
// This will be picked up by the broadcast service for real-time WebSocket updates
func (c *Client) PublishEvent(ctx context.Context, event *models.AuctionEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return c.client.Publish(ctx, events.Channel(event.AuctionID), eventJSON).Err()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

func snapshotKey(auctionID string) string {
	return fmt.Sprintf("auction:%s:snapshot", auctionID)
}

func versionKey(auctionID string) string {
	return fmt.Sprintf("auction:%s:version", auctionID)
}
