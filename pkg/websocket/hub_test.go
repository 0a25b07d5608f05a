package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, hub *Hub, onConnect func(*Client)) *httptest.Server {
	t.Helper()
	router := gin.New()
	upgrader := NewUpgrader("*")
	router.GET("/sessions/:id/events", func(c *gin.Context) {
		ServeSession(c, hub, upgrader, c.Param("id"), onConnect)
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/" + sessionID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestSendToSessionReachesOnlyThatSession(t *testing.T) {
	hub := NewHub()
	server := newTestServer(t, hub, nil)

	a := dial(t, server, "session-a")
	b := dial(t, server, "session-b")
	require.Eventually(t, func() bool { return hub.GetClientCount() == 2 }, time.Second, 10*time.Millisecond)

	msg, err := NewMessage("quote", "session-a", map[string]string{"status": "pending"})
	require.NoError(t, err)
	hub.SendToSession("session-a", msg)

	got := readMessage(t, a)
	assert.Equal(t, "quote", got.Type)
	assert.Equal(t, "session-a", got.SessionID)

	var payload map[string]string
	require.NoError(t, got.Decode(&payload))
	assert.Equal(t, "pending", payload["status"])

	require.NoError(t, b.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = b.ReadMessage()
	assert.Error(t, err)
}

func TestOnConnectSnapshotIsFirst(t *testing.T) {
	hub := NewHub()
	server := newTestServer(t, hub, func(c *Client) {
		msg, _ := NewMessage("state", c.SessionID, map[string]string{"state": "idle"})
		c.Push(msg)
	})

	conn := dial(t, server, "s1")
	got := readMessage(t, conn)
	assert.Equal(t, "state", got.Type)
}

func TestInboundMessagesReachHandler(t *testing.T) {
	hub := NewHub()
	received := make(chan *Message, 1)
	hub.RegisterHandler("map_ready", func(c *Client, msg *Message) {
		received <- msg
	})
	server := newTestServer(t, hub, nil)

	conn := dial(t, server, "s1")
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "map_ready"}))

	select {
	case msg := <-received:
		assert.Equal(t, "map_ready", msg.Type)
		assert.Equal(t, "s1", msg.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestCloseSessionDisconnectsClients(t *testing.T) {
	hub := NewHub()
	server := newTestServer(t, hub, nil)

	conn := dial(t, server, "s1")
	require.Eventually(t, func() bool { return hub.SessionClientCount("s1") == 1 }, time.Second, 10*time.Millisecond)

	hub.CloseSession("s1")
	assert.Equal(t, 0, hub.SessionClientCount("s1"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := NewHub()
	client := NewClient("c1", "s1", nil, hub)
	hub.Register(client)

	msg, err := NewMessage("route", "s1", nil)
	require.NoError(t, err)
	for i := 0; i < sendBuffer; i++ {
		hub.SendToSession("s1", msg)
	}
	assert.Equal(t, 1, hub.GetClientCount())

	hub.SendToSession("s1", msg)
	assert.Equal(t, 0, hub.GetClientCount())
	assert.False(t, client.Push(msg))
}

func TestUpgraderOrigins(t *testing.T) {
	upgrader := NewUpgrader("http://localhost:3000, https://app.example.com")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, upgrader.CheckOrigin(req))

	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, upgrader.CheckOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, upgrader.CheckOrigin(req))
}
