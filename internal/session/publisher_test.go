package session

import (
	"testing"

	ws "github.com/gustavodarosa/KidGo/pkg/websocket"
	"github.com/stretchr/testify/assert"
)

func TestHubEmitter_DeliversOnlyToWatchers(t *testing.T) {
	hub := ws.NewHub()
	hub.Register(ws.NewClient("c1", "s1", nil, hub))
	e := NewHubEmitter(hub)
	change := StateChange{State: StateSearching, From: StateIdle}

	for i := 0; i < 1000; i++ {
		e.Emit("s2", EventState, change)
	}
	assert.Equal(t, 1, hub.SessionClientCount("s1"))

	// Nobody drains c1, so its queue overflows and the hub drops it.
	for i := 0; i < 1000; i++ {
		e.Emit("s1", EventState, change)
	}
	assert.Equal(t, 0, hub.GetClientCount())
}

func TestHubEmitter_CloseSession(t *testing.T) {
	hub := ws.NewHub()
	hub.Register(ws.NewClient("c1", "s1", nil, hub))
	hub.Register(ws.NewClient("c2", "s2", nil, hub))

	NewHubEmitter(hub).CloseSession("s1")
	assert.Equal(t, 0, hub.SessionClientCount("s1"))
	assert.Equal(t, 1, hub.GetClientCount())
}
