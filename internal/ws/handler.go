package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/regassist/backend/internal/replay"
	"github.com/regassist/backend/pkg/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the frontend host is pinned down
		return true
	},
}

// Handler handles WebSocket connections and dispatches inbound frames.
type Handler struct {
	hub     *Hub
	service *Service
	replay  *replay.Store
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, service *Service, replayStore *replay.Store) *Handler {
	return &Handler{
		hub:     hub,
		service: service,
		replay:  replayStore,
	}
}

// HandleConnection upgrades the HTTP request and runs the client pumps.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(h.hub, conn, userID)
	h.hub.Register(client)
	h.hub.SetOnFrame(h.handleFrame)

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// handleFrame processes incoming frames from clients.
func (h *Handler) handleFrame(client *Client, frame *protocol.Frame) {
	switch frame.Type {
	case protocol.FrameTypeSubscribe:
		h.handleSubscribe(client, frame)
	case protocol.FrameTypeUnsubscribe:
		h.handleUnsubscribe(client, frame)
	case protocol.FrameTypeAgentSearch:
		h.handleSearch(client, frame)
	case protocol.FrameTypeInterruptStream:
		h.handleInterrupt(client, frame)
	case protocol.FrameTypeUserTyping:
		h.handleTyping(client, frame)
	case protocol.FrameTypePing:
		h.handlePing(client)
	default:
		log.Printf("Ignoring frame with unhandled type %q", frame.Type)
	}
}

// handleSubscribe adds the project to the client's subscription set,
// acknowledges, and replays recent frames so reconnecting clients
// recover stream output they missed.
func (h *Handler) handleSubscribe(client *Client, frame *protocol.Frame) {
	if frame.ProjectID == "" {
		log.Printf("Subscribe frame missing project_id, dropping")
		return
	}

	client.Subscribe(frame.ProjectID)

	ack, err := protocol.New(protocol.FrameTypeSubscribed, frame.ProjectID, nil)
	if err != nil {
		log.Printf("Failed to build subscribed ack: %v", err)
		return
	}
	if err := client.SendFrame(ack); err != nil {
		log.Printf("Failed to send subscribed ack: %v", err)
	}

	for _, recorded := range h.replay.Snapshot(frame.ProjectID) {
		if err := client.SendFrame(recorded); err != nil {
			log.Printf("Failed to replay frame: %v", err)
			return
		}
	}
}

// handleUnsubscribe removes the project from the client's set.
func (h *Handler) handleUnsubscribe(client *Client, frame *protocol.Frame) {
	if frame.ProjectID == "" {
		log.Printf("Unsubscribe frame missing project_id, dropping")
		return
	}

	client.Unsubscribe(frame.ProjectID)

	ack, err := protocol.New(protocol.FrameTypeUnsubscribed, frame.ProjectID, nil)
	if err != nil {
		log.Printf("Failed to build unsubscribed ack: %v", err)
		return
	}
	if err := client.SendFrame(ack); err != nil {
		log.Printf("Failed to send unsubscribed ack: %v", err)
	}
}

// handleSearch starts an agent stream for the project.
func (h *Handler) handleSearch(client *Client, frame *protocol.Frame) {
	if frame.ProjectID == "" {
		log.Printf("Search frame missing project_id, dropping")
		return
	}

	var payload protocol.SearchPayload
	if err := frame.DecodePayload(&payload); err != nil {
		log.Printf("Invalid search payload: %v", err)
		return
	}

	if err := h.service.StartSearch(frame.ProjectID, payload.Query); err != nil {
		log.Printf("Failed to start search for project %s: %v", frame.ProjectID, err)
	}
}

// handleInterrupt cancels the project's running agent stream.
func (h *Handler) handleInterrupt(client *Client, frame *protocol.Frame) {
	if frame.ProjectID == "" {
		log.Printf("Interrupt frame missing project_id, dropping")
		return
	}

	if err := h.service.Interrupt(frame.ProjectID, frame.EffectiveStreamID()); err != nil {
		log.Printf("Interrupt for project %s: %v", frame.ProjectID, err)
	}
}

// handleTyping rebroadcasts typing presence to the project's other
// subscribers, stamping the sender's user ID.
func (h *Handler) handleTyping(client *Client, frame *protocol.Frame) {
	if frame.ProjectID == "" {
		return
	}

	out, err := protocol.New(protocol.FrameTypeUserTyping, frame.ProjectID, protocol.TypingPayload{
		UserID: client.UserID(),
	})
	if err != nil {
		log.Printf("Failed to build typing frame: %v", err)
		return
	}

	if err := h.hub.BroadcastExcept(out, client); err != nil {
		log.Printf("Failed to broadcast typing frame: %v", err)
	}
}

// handlePing answers liveness checks from the client.
func (h *Handler) handlePing(client *Client) {
	pong, err := protocol.New(protocol.FrameTypePong, "", nil)
	if err != nil {
		return
	}
	client.SendFrame(pong)
}

// readPump pumps frames from the WebSocket connection to the hub.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		frame, err := protocol.Decode(message)
		if err != nil {
			log.Printf("Dropping inbound frame: %v", err)
			continue
		}

		h.hub.HandleFrame(client, frame)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Send each frame in its own WebSocket message so clients
			// can JSON-decode them one at a time
			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Process any queued messages, sending each in its own frame
			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queuedMsg := <-client.SendChan()
				client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.Conn().WriteMessage(websocket.TextMessage, queuedMsg); err != nil {
					return
				}
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// GetUpgrader returns the WebSocket upgrader for custom configuration.
func GetUpgrader() *websocket.Upgrader {
	return &upgrader
}

// SetCheckOrigin sets a custom origin checker for the WebSocket upgrader.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}
