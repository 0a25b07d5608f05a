package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/gustavodarosa/KidGo/pkg/config"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:       true,
		WindowSeconds: 60,
		DefaultLimit:  60,
		DefaultBurst:  10,
		RedisPrefix:   "rl",
		EndpointOverrides: map[string]config.EndpointRateLimitConfig{
			"POST:/api/v1/sessions": {Limit: 5, Burst: 0, WindowSeconds: 30},
		},
	}
}

func TestRuleFor(t *testing.T) {
	l := NewLimiter(nil, testConfig())

	assert.Equal(t, Rule{Limit: 60, Burst: 10, Window: time.Minute}, l.RuleFor("GET:/api/v1/sessions/:id"))
	assert.Equal(t, Rule{Limit: 5, Burst: 0, Window: 30 * time.Second}, l.RuleFor("POST:/api/v1/sessions"))
}

func TestAllow_DisabledAlwaysAllows(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	l := NewLimiter(nil, cfg)

	res, err := l.Allow(context.Background(), "POST:/x", "ip:1.2.3.4", l.RuleFor("POST:/x"))
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	var nilLimiter *Limiter
	assert.False(t, nilLimiter.Enabled())
}

func TestAllow_RunsTokenBucket(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewLimiter(client, testConfig())
	now := time.UnixMilli(1_700_000_000_000)
	l.WithNow(func() time.Time { return now })

	sha := redis.NewScript(tokenBucketScript).Hash()
	key := "rl:GET:/api/v1/sessions/:id:session:abc"
	rule := l.RuleFor("GET:/api/v1/sessions/:id")

	mock.ExpectEvalSha(sha, []string{key}, now.UnixMilli(), "0.0010000000", "70.0000000000", int64(120000)).
		SetVal([]interface{}{int64(1), "69", int64(0)})

	res, err := l.Allow(context.Background(), "GET:/api/v1/sessions/:id", "session:abc", rule)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 69, res.Remaining)
	assert.Equal(t, time.Second, res.ResetAfter)

	mock.ExpectEvalSha(sha, []string{key}, now.UnixMilli(), "0.0010000000", "70.0000000000", int64(120000)).
		SetVal([]interface{}{int64(0), "0.5", int64(500)})

	res, err = l.Allow(context.Background(), "GET:/api/v1/sessions/:id", "session:abc", rule)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 500*time.Millisecond, res.RetryAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllow_ScriptError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewLimiter(client, testConfig())
	now := time.UnixMilli(1_700_000_000_000)
	l.WithNow(func() time.Time { return now })

	sha := redis.NewScript(tokenBucketScript).Hash()
	mock.ExpectEvalSha(sha, []string{"rl:POST:/x:ip:1.2.3.4"}, now.UnixMilli(), "0.0010000000", "70.0000000000", int64(120000)).
		SetErr(errors.New("connection refused"))

	_, err := l.Allow(context.Background(), "POST:/x", "ip:1.2.3.4", l.RuleFor("POST:/x"))
	assert.Error(t, err)
}
