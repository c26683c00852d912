package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/aaronwang/bidding-app/shared/models"
	_ "github.com/lib/pq"
)

// PostgresClient wraps the PostgreSQL database connection
type PostgresClient struct {
	db *sql.DB
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(connStr string) (*PostgresClient, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresClient{db: db}, nil
}

// NewFromDB wraps an existing handle
func NewFromDB(db *sql.DB) *PostgresClient {
	return &PostgresClient{db: db}
}

// InitSchema creates the necessary database tables
func (c *PostgresClient) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS auction_events (
		id VARCHAR(255) PRIMARY KEY,
		auction_id VARCHAR(255) NOT NULL,
		listing_id VARCHAR(255),
		type VARCHAR(50) NOT NULL,
		caller VARCHAR(255) NOT NULL,
		product TEXT,
		seller VARCHAR(255),
		bidder VARCHAR(255),
		amount NUMERIC(20, 0) NOT NULL,
		version NUMERIC(20, 0) NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS settlements (
		id VARCHAR(255) PRIMARY KEY,
		auction_id VARCHAR(255) NOT NULL,
		product TEXT NOT NULL,
		seller VARCHAR(255) NOT NULL,
		buyer VARCHAR(255) NOT NULL,
		amount NUMERIC(20, 0) NOT NULL,
		settled_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_auction_events_auction ON auction_events(auction_id, version);
	CREATE INDEX IF NOT EXISTS idx_settlements_settled_at ON settlements(settled_at);
	`

	_, err := c.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// InsertEvent records an auction event; redelivered events are ignored.
// Amount and version are bound as decimal text to keep the full uint64 range.
func (c *PostgresClient) InsertEvent(ctx context.Context, event *models.AuctionEvent) error {
	query := `
		INSERT INTO auction_events (id, auction_id, listing_id, type, caller, product, seller, bidder, amount, version, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		event.EventID,
		event.AuctionID,
		event.ListingID,
		string(event.Type),
		string(event.Caller),
		event.Product,
		string(event.Seller),
		string(event.Bidder),
		strconv.FormatUint(event.Amount, 10),
		strconv.FormatUint(event.Version, 10),
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// InsertSettlement records a completed listing; duplicates are ignored
func (c *PostgresClient) InsertSettlement(ctx context.Context, s *models.Settlement) error {
	query := `
		INSERT INTO settlements (id, auction_id, product, seller, buyer, amount, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		s.ID,
		s.AuctionID,
		s.Product,
		string(s.Seller),
		string(s.Buyer),
		strconv.FormatUint(s.Amount, 10),
		s.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}

	return nil
}

// GetSettlements retrieves the most recent settlements
func (c *PostgresClient) GetSettlements(ctx context.Context, limit int) ([]*models.Settlement, error) {
	query := `
		SELECT id, auction_id, product, seller, buyer, amount, settled_at
		FROM settlements
		ORDER BY settled_at DESC
		LIMIT $1
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlements: %w", err)
	}
	defer rows.Close()

	var settlements []*models.Settlement
	for rows.Next() {
		s := &models.Settlement{}
		var seller, buyer string
		err := rows.Scan(
			&s.ID,
			&s.AuctionID,
			&s.Product,
			&seller,
			&buyer,
			&s.Amount,
			&s.SettledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		s.Seller = models.Participant(seller)
		s.Buyer = models.Participant(buyer)
		settlements = append(settlements, s)
	}

	return settlements, rows.Err()
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	return c.db.Close()
}
