package websocket

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"go.uber.org/zap"
)

// NewUpgrader returns an upgrader that accepts the given comma-separated
// origins. "*" accepts any origin.
func NewUpgrader(origins string) *websocket.Upgrader {
	allowed := make(map[string]bool)
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = true
		}
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		},
	}
}

// ServeSession upgrades the request and subscribes the connection to the
// session's events. onConnect runs after registration, so a snapshot sent
// from it is ordered before any later event.
func ServeSession(c *gin.Context, hub *Hub, upgrader *websocket.Upgrader, sessionID string, onConnect func(*Client)) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WarnContext(c.Request.Context(), "failed to upgrade websocket", zap.Error(err))
		return
	}

	client := NewClient(uuid.NewString(), sessionID, conn, hub)
	hub.Register(client)
	if onConnect != nil {
		onConnect(client)
	}

	go client.WritePump()
	go client.ReadPump()
}

// Push queues msg for a single client.
func (c *Client) Push(msg *Message) bool {
	return c.trySend(msg)
}
