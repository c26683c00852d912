package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Manager manages all WebSocket connections
type Manager struct {
	// auctionID -> set of clients watching that auction; only touched by Run
	subscribers map[string]map[*Client]struct{}

	// Channels for managing connections
	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	stats      chan statsRequest
	// closed when Run returns so callers never block on a stopped manager
	done chan struct{}

	log *slog.Logger
}

// Client represents a WebSocket client connection
type Client struct {
	ID        string
	AuctionID string
	Conn      *websocket.Conn
	Send      chan []byte

	closeOnce sync.Once
	log       *slog.Logger
}

// BroadcastMessage represents a message to broadcast to all clients watching an auction
type BroadcastMessage struct {
	AuctionID string
	Payload   []byte
}

type statsRequest struct {
	auctionID string
	reply     chan int
}

// NewManager creates a new WebSocket manager
func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		subscribers: make(map[string]map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *BroadcastMessage, sendBuffer), // Buffered for high throughput
		stats:       make(chan statsRequest),
		done:        make(chan struct{}),
		log:         log,
	}
}

// Run starts the manager's main loop until ctx is cancelled
// This should run in a goroutine
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			for _, set := range m.subscribers {
				for client := range set {
					m.unregisterClient(client)
				}
			}
			return

		case client := <-m.register:
			m.registerClient(client)

		case client := <-m.unregister:
			m.unregisterClient(client)

		case message := <-m.broadcast:
			m.broadcastToAuction(message.AuctionID, message.Payload)

		case req := <-m.stats:
			req.reply <- len(m.subscribers[req.auctionID])
		}
	}
}

// RegisterClient adds a client to the manager. A stopped manager closes
// the client instead.
func (m *Manager) RegisterClient(client *Client) {
	select {
	case m.register <- client:
	case <-m.done:
		client.close()
		client.Conn.Close()
	}
}

// UnregisterClient removes a client from the manager
func (m *Manager) UnregisterClient(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

// Broadcast sends a message to all clients watching an auction
func (m *Manager) Broadcast(auctionID string, payload []byte) {
	select {
	case m.broadcast <- &BroadcastMessage{AuctionID: auctionID, Payload: payload}:
	case <-m.done:
	}
}

// GetSubscriberCount returns the number of clients watching an auction
func (m *Manager) GetSubscriberCount(auctionID string) int {
	reply := make(chan int, 1)
	select {
	case m.stats <- statsRequest{auctionID: auctionID, reply: reply}:
		return <-reply
	case <-m.done:
		return 0
	}
}

// registerClient adds a client to the subscribers map
func (m *Manager) registerClient(client *Client) {
	set, ok := m.subscribers[client.AuctionID]
	if !ok {
		set = make(map[*Client]struct{})
		m.subscribers[client.AuctionID] = set
	}
	set[client] = struct{}{}

	m.log.Debug("client subscribed", "client", client.ID, "auction", client.AuctionID)

	// Start goroutine to handle writes for this client
	go client.writePump()
}

// unregisterClient removes a client and closes its connection
func (m *Manager) unregisterClient(client *Client) {
	set, ok := m.subscribers[client.AuctionID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(m.subscribers, client.AuctionID)
	}
	client.close()

	m.log.Debug("client unsubscribed", "client", client.ID, "auction", client.AuctionID)
}

// broadcastToAuction sends a message to all clients watching a specific auction
func (m *Manager) broadcastToAuction(auctionID string, payload []byte) {
	count := 0
	for client := range m.subscribers[auctionID] {
		select {
		case client.Send <- payload:
			count++
		default:
			// Client's send channel is full, disconnect them
			// This prevents one slow client from blocking others
			m.unregisterClient(client)
		}
	}

	m.log.Debug("broadcasted event", "auction", auctionID, "clients", count)
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

// writePump pumps messages from the Send channel to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client input until the connection fails, then asks the
// manager to drop the client
func (c *Client) readPump(unregister func(*Client)) {
	defer unregister(c)

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket error", "client", c.ID, "error", err)
			}
			break
		}

		// Watchers have nothing to say yet; log what they send
		var msg map[string]interface{}
		if err := json.Unmarshal(message, &msg); err == nil {
			c.log.Debug("client message", "client", c.ID, "message", msg)
		}
	}
}

// StartReadPump starts the read pump for this client
func (c *Client) StartReadPump(unregister func(*Client)) {
	go c.readPump(unregister)
}
