package places

import (
	"github.com/google/uuid"
	"github.com/gustavodarosa/KidGo/pkg/clock"
)

// TokenManager owns the billing session token. It is confined to the session
// loop; RotateAfterResolution is the only method that replaces a token.
type TokenManager struct {
	clock    clock.Clock
	newToken func() string
	session  *SearchSession
}

// NewTokenManager returns a manager with no open interaction.
func NewTokenManager(clk clock.Clock) *TokenManager {
	if clk == nil {
		clk = clock.Real()
	}
	return &TokenManager{
		clock:    clk,
		newToken: func() string { return uuid.New().String() },
	}
}

// Start opens an interaction if none is open and returns the current session.
func (m *TokenManager) Start() SearchSession {
	if m.session == nil {
		m.session = m.fresh()
	}
	return *m.session
}

// Current returns the open session, if any.
func (m *TokenManager) Current() (SearchSession, bool) {
	if m.session == nil {
		return SearchSession{}, false
	}
	return *m.session, true
}

// RotateAfterResolution ends the current interaction and opens the next one.
func (m *TokenManager) RotateAfterResolution() SearchSession {
	m.session = m.fresh()
	return *m.session
}

func (m *TokenManager) fresh() *SearchSession {
	return &SearchSession{Token: m.newToken(), InteractionStartedAt: m.clock.Now()}
}
