package models

import "time"

// EventType names the transition an AuctionEvent reports
type EventType string

// EventType constants
const (
	EventListingStarted EventType = "listing_started"
	EventOfferPlaced    EventType = "offer_placed"
	EventOfferAccepted  EventType = "offer_accepted"
	EventSettled        EventType = "settled"
)

// AuctionEvent is published after every successful operation.
// It is sent to:
// 1. Redis Pub/Sub (for real-time WebSocket broadcast)
// 2. NATS JetStream (for archival to PostgreSQL)
type AuctionEvent struct {
	EventID   string      `json:"event_id"`
	AuctionID string      `json:"auction_id"`
	ListingID string      `json:"listing_id,omitempty"`
	Type      EventType   `json:"type"`
	Caller    Participant `json:"caller"`
	Product   string      `json:"product,omitempty"`
	Seller    Participant `json:"seller,omitempty"`
	Bidder    Participant `json:"bidder,omitempty"`
	Amount    uint64      `json:"amount"`
	Version   uint64      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
}

// Settlement is the archived record of a completed listing. ID is the
// listing ID, so one listing settles at most once.
type Settlement struct {
	ID        string      `json:"id"`
	AuctionID string      `json:"auction_id"`
	Product   string      `json:"product"`
	Seller    Participant `json:"seller"`
	Buyer     Participant `json:"buyer"`
	Amount    uint64      `json:"amount"`
	SettledAt time.Time   `json:"settled_at"`
}
