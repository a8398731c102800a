package sse

import (
	"sync"

	"github.com/companion-hub/companion-hub/internal/domain/notification"
)

// Hub manages SSE clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*notification.SSEClient
	byUser  map[string]map[string]*notification.SSEClient
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*notification.SSEClient),
		byUser:  make(map[string]map[string]*notification.SSEClient),
	}
}

// Register adds client. A client already registered under the same ID is closed and replaced.
func (h *Hub) Register(client *notification.SSEClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.clients[client.ClientID]; ok && prev != client {
		h.removeLocked(prev)
	}
	h.clients[client.ClientID] = client
	if client.UserID != nil {
		set := h.byUser[*client.UserID]
		if set == nil {
			set = make(map[string]*notification.SSEClient)
			h.byUser[*client.UserID] = set
		}
		set[client.ClientID] = client
	}
}

// Unregister removes client if it is still the one registered under its ID.
func (h *Hub) Unregister(client *notification.SSEClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[client.ClientID]; ok && cur == client {
		h.removeLocked(cur)
	}
}

func (h *Hub) removeLocked(c *notification.SSEClient) {
	c.Close()
	delete(h.clients, c.ClientID)
	if c.UserID == nil {
		return
	}
	if set := h.byUser[*c.UserID]; set != nil && set[c.ClientID] == c {
		delete(set, c.ClientID)
		if len(set) == 0 {
			delete(h.byUser, *c.UserID)
		}
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// UserClientCount returns how many streams the user has open.
func (h *Hub) UserClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

func (h *Hub) BroadcastToUser(userID string, message *notification.SSEMessage) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, c := range h.byUser[userID] {
		if trySend(c, message) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) SendToClient(clientID string, message *notification.SSEMessage) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.clients[clientID]
	if c == nil {
		return notification.ErrClientNotFound
	}
	if !trySend(c, message) {
		return notification.ErrChannelFull
	}
	return nil
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
	h.byUser = make(map[string]map[string]*notification.SSEClient)
}

// trySend must run under the hub lock so it never races with Close.
func trySend(c *notification.SSEClient, msg *notification.SSEMessage) bool {
	select {
	case c.MessageChan <- msg:
		return true
	default:
		return false
	}
}
