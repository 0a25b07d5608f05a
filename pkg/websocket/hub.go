package websocket

import (
	"sync"

	"github.com/gustavodarosa/KidGo/pkg/logger"
	"go.uber.org/zap"
)

// MessageHandler handles an inbound message of one type.
type MessageHandler func(*Client, *Message)

// Hub tracks connected clients grouped by pipeline session.
type Hub struct {
	clients  map[string]*Client
	sessions map[string]map[string]*Client
	handlers map[string]MessageHandler

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		sessions: make(map[string]map[string]*Client),
		handlers: make(map[string]MessageHandler),
	}
}

// Register adds a client and joins it to its session room.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.clients[client.ID]; ok {
		h.removeLocked(existing)
	}

	h.clients[client.ID] = client
	room, ok := h.sessions[client.SessionID]
	if !ok {
		room = make(map[string]*Client)
		h.sessions[client.SessionID] = room
	}
	room[client.ID] = client

	logger.Debug("websocket client registered",
		zap.String("client_id", client.ID),
		zap.String("session_id", client.SessionID),
	)
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[client.ID]; ok && current == client {
		h.removeLocked(client)
	}
}

func (h *Hub) removeLocked(client *Client) {
	delete(h.clients, client.ID)
	if room, ok := h.sessions[client.SessionID]; ok {
		delete(room, client.ID)
		if len(room) == 0 {
			delete(h.sessions, client.SessionID)
		}
	}
	client.close()
}

// SendToSession queues msg for every client watching the session. Clients
// that cannot keep up are disconnected rather than blocking the sender.
func (h *Hub) SendToSession(sessionID string, msg *Message) {
	h.mu.RLock()
	var slow []*Client
	for _, client := range h.sessions[sessionID] {
		if !client.trySend(msg) {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		logger.Warn("websocket client too slow, disconnecting",
			zap.String("client_id", client.ID),
			zap.String("session_id", sessionID),
		)
		h.unregister(client)
	}
}

// CloseSession disconnects every client of a session.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.sessions[sessionID] {
		h.removeLocked(client)
	}
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.clients {
		h.removeLocked(client)
	}
}

// HandleMessage routes incoming messages to the registered handler.
func (h *Hub) HandleMessage(client *Client, msg *Message) {
	h.mu.RLock()
	handler, exists := h.handlers[msg.Type]
	h.mu.RUnlock()

	if !exists {
		logger.Debug("no handler for websocket message", zap.String("type", msg.Type))
		return
	}
	handler(client, msg)
}

// RegisterHandler registers a message handler for a specific type
func (h *Hub) RegisterHandler(msgType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgType] = handler
}

// SessionClientCount returns the number of clients watching a session.
func (h *Hub) SessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
