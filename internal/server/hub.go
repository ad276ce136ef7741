// internal/server/hub.go
package server

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/agentcoord/internal/events"
	"github.com/agentcoord/internal/types"
)

// WebSocketBufferSize is the buffer size for send/broadcast channels.
// Pending messages queue up to this depth before slow clients are
// dropped.
const WebSocketBufferSize = 256

// Client represents one WebSocket subscriber
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub manages WebSocket clients
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, WebSocketBufferSize),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastJSON sends a JSON message to all clients
func (h *Hub) BroadcastJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.broadcast <- data
}

// BroadcastRecord maps an interaction record to its WS message type
// and fans it out.
func (h *Hub) BroadcastRecord(rec *events.Record) {
	h.BroadcastJSON(types.WSMessage{
		Type: wsType(rec.Kind),
		Data: rec,
	})
}

func wsType(kind events.Kind) string {
	switch kind {
	case events.KindTask, events.KindAssignment:
		return types.WSTypeTaskUpdate
	case events.KindLock:
		return types.WSTypeLockUpdate
	case events.KindApproval:
		return types.WSTypeApproval
	case events.KindMessage:
		return types.WSTypeMessage
	case events.KindResource:
		return types.WSTypeAgentState
	default:
		return types.WSTypeStateUpdate
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads messages from the WebSocket until the peer closes
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
		// Incoming client messages are ignored; the feed is one-way.
	}
}

// writePump writes queued messages to the WebSocket
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
