package places

import (
	"testing"
	"time"

	"github.com/gustavodarosa/KidGo/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_Lifecycle(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	m := NewTokenManager(clk)

	_, ok := m.Current()
	assert.False(t, ok)

	first := m.Start()
	assert.NotEmpty(t, first.Token)
	assert.Equal(t, clk.Now(), first.InteractionStartedAt)

	clk.Advance(time.Minute)
	again := m.Start()
	assert.Equal(t, first, again, "start must not replace an open interaction")

	rotated := m.RotateAfterResolution()
	assert.NotEqual(t, first.Token, rotated.Token)
	assert.Equal(t, clk.Now(), rotated.InteractionStartedAt)

	current, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, rotated, current)
}
