// Package events names the subjects and channels auction events travel on.
package events

import "strings"

// JetStream layout of the durable auction event log
const (
	Stream        = "AUCTION_EVENTS"
	SubjectPrefix = "auction.events."
	// SubjectAll matches the events of every auction
	SubjectAll = SubjectPrefix + "*"
)

// Redis Pub/Sub layout of the live event feed
const (
	ChannelPrefix = "auction_events:"
	// ChannelPattern matches the feed of every auction
	ChannelPattern = ChannelPrefix + "*"
)

// Subject is the JetStream subject for one auction
func Subject(auctionID string) string {
	return SubjectPrefix + auctionID
}

// Channel is the Pub/Sub channel for one auction
func Channel(auctionID string) string {
	return ChannelPrefix + auctionID
}

// AuctionIDFromChannel extracts the auction ID from a channel name
// Example: "auction_events:lot-1" -> "lot-1"
func AuctionIDFromChannel(channel string) string {
	id, ok := strings.CutPrefix(channel, ChannelPrefix)
	if !ok {
		return ""
	}
	return id
}
