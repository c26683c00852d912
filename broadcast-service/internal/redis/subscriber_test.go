package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aaronwang/bidding-app/shared/events"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenForwardsAuctionEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	sub, err := NewSubscriber(mr.Addr(), "", 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sub.SubscribeToPattern(ctx, events.ChannelPattern))

	out := make(chan *Message, 4)
	done := make(chan error, 1)
	go func() { done <- sub.Listen(ctx, out) }()

	mr.Publish(events.Channel("lot-1"), "not json")
	mr.Publish(events.Channel("lot-1"), `{"event_id":"e1","auction_id":"lot-1","type":"offer_placed","amount":20}`)

	select {
	case msg := <-out:
		assert.Equal(t, "lot-1", msg.AuctionID)
		assert.Equal(t, "e1", msg.Event.EventID)
		assert.EqualValues(t, 20, msg.Event.Amount)
	case <-time.After(2 * time.Second):
		t.Fatal("no message forwarded")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListenRequiresSubscription(t *testing.T) {
	mr := miniredis.RunT(t)
	sub, err := NewSubscriber(mr.Addr(), "", 0, slog.Default())
	require.NoError(t, err)
	defer sub.Close()

	assert.Error(t, sub.Listen(context.Background(), make(chan *Message)))
}
