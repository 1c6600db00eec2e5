// Package ws provides the WebSocket endpoint that multiplexes
// per-project subscriptions over a single client connection.
package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/regassist/backend/pkg/protocol"
)

// Client represents one WebSocket client connection. A client holds its
// own set of subscribed project IDs; broadcasts are filtered against it.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte

	mu     sync.Mutex
	closed bool
	subs   map[string]bool
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 256),
		subs:   make(map[string]bool),
	}
}

// Send queues a message to be sent to the client.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		// Buffer full, close the client
		c.closeLocked()
	}
}

// SendFrame encodes and queues a frame for this client.
func (c *Client) SendFrame(frame *protocol.Frame) error {
	data, err := frame.Encode()
	if err != nil {
		return err
	}
	c.Send(data)
	return nil
}

// Close closes the client connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// UserID returns the user associated with this client.
func (c *Client) UserID() string {
	return c.userID
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Subscribe adds a project to the client's subscription set.
func (c *Client) Subscribe(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[projectID] = true
}

// Unsubscribe removes a project from the client's subscription set.
func (c *Client) Unsubscribe(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, projectID)
}

// IsSubscribed reports whether the client subscribed to the project.
func (c *Client) IsSubscribed(projectID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[projectID]
}

// Subscriptions returns a copy of the client's subscribed project IDs.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	return ids
}

// Hub manages the set of connected WebSocket clients and routes frames
// to the clients whose subscriptions match.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	// Callbacks
	onFrame func(client *Client, frame *protocol.Frame)
	onClose func()
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
	}
}

// SetOnFrame sets the callback for incoming frames.
func (h *Hub) SetOnFrame(callback func(client *Client, frame *protocol.Frame)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onFrame = callback
}

// SetOnClose sets the callback for when all clients disconnect.
func (h *Hub) SetOnClose(callback func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onClose = callback
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	clientCount := len(h.clients)
	onClose := h.onClose
	h.mu.Unlock()

	client.Close()

	// Call onClose callback if no clients remain
	if clientCount == 0 && onClose != nil {
		onClose()
	}
}

// Broadcast delivers a frame to every client subscribed to its project.
// Frames without a project scope go to all clients.
func (h *Hub) Broadcast(frame *protocol.Frame) error {
	return h.broadcast(frame, nil)
}

// BroadcastExcept delivers a frame like Broadcast but skips one client,
// typically the frame's sender.
func (h *Hub) BroadcastExcept(frame *protocol.Frame, skip *Client) error {
	return h.broadcast(frame, skip)
}

func (h *Hub) broadcast(frame *protocol.Frame, skip *Client) error {
	data, err := frame.Encode()
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client == skip {
			continue
		}
		if frame.ProjectID != "" && !client.IsSubscribed(frame.ProjectID) {
			continue
		}
		client.Send(data)
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of clients subscribed to a project.
func (h *Hub) SubscriberCount(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for client := range h.clients {
		if client.IsSubscribed(projectID) {
			count++
		}
	}
	return count
}

// HandleFrame processes an incoming frame from a client.
func (h *Hub) HandleFrame(client *Client, frame *protocol.Frame) {
	h.mu.RLock()
	callback := h.onFrame
	h.mu.RUnlock()

	if callback != nil {
		callback(client, frame)
	}
}

// Close closes all client connections and the hub.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
