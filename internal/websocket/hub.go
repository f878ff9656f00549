package websocket

import (
	"sync"

	"traffic-light/internal/observability"
)

// Hub tracks the live streaming clients so they can be counted and closed
// together on shutdown. Delivery itself goes through the broker, one
// subscription per client.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Register adds a client. It returns false once the hub has been closed;
// the caller must not serve the client in that case.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if _, ok := h.clients[client.ID()]; !ok {
		h.clients[client.ID()] = client
		observability.ActiveConnections.Inc()
	}
	return true
}

// Unregister removes a client. Unknown clients are ignored.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID()]; ok {
		delete(h.clients, client.ID())
		observability.ActiveConnections.Dec()
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every registered client and refuses new ones.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}
}
