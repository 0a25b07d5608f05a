package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/gustavodarosa/KidGo/pkg/config"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"github.com/gustavodarosa/KidGo/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func limiterConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:       true,
		WindowSeconds: 60,
		DefaultLimit:  60,
		DefaultBurst:  10,
		RedisPrefix:   "rl",
	}
}

func newLimiter(t *testing.T) (*ratelimit.Limiter, redismock.ClientMock, time.Time, string) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	l := ratelimit.NewLimiter(client, limiterConfig())
	now := time.UnixMilli(1_700_000_000_000)
	l.WithNow(func() time.Time { return now })
	return l, mock, now, l.ScriptHash()
}

func TestRequestTimeout(t *testing.T) {
	t.Run("slow handler that never writes gets 504", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestTimeout(20 * time.Millisecond))
		router.GET("/slow", func(c *gin.Context) {
			<-c.Request.Context().Done()
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))

		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
		assert.Equal(t, "true", w.Header().Get("X-Timeout"))
	})

	t.Run("fast handler is untouched", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestTimeout(time.Second))
		router.GET("/fast", func(c *gin.Context) {
			_, ok := c.Request.Context().Deadline()
			assert.True(t, ok)
			c.Status(http.StatusNoContent)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fast", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestSessionIDTagsContext(t *testing.T) {
	router := gin.New()
	var seen string
	router.GET("/sessions/:id", SessionID("id"), func(c *gin.Context) {
		seen = logger.SessionIDFromContext(c.Request.Context())
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	assert.Equal(t, "abc", seen)
}

func TestRateLimit_AllowsAndSetsHeaders(t *testing.T) {
	l, mock, now, sha := newLimiter(t)
	mock.ExpectEvalSha(sha, []string{"rl:GET:/api/v1/sessions/:id:session:abc"},
		now.UnixMilli(), "0.0010000000", "70.0000000000", int64(120000)).
		SetVal([]interface{}{int64(1), "69", int64(0)})

	router := gin.New()
	router.GET("/api/v1/sessions/:id", RateLimit(l, "id"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "69", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Reset"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimit_RejectsByClientIP(t *testing.T) {
	l, mock, now, sha := newLimiter(t)
	mock.ExpectEvalSha(sha, []string{"rl:POST:/api/v1/sessions:ip:192.0.2.1"},
		now.UnixMilli(), "0.0010000000", "70.0000000000", int64(120000)).
		SetVal([]interface{}{int64(0), "0.5", int64(500)})

	router := gin.New()
	called := false
	router.POST("/api/v1/sessions", RateLimit(l, "id"), func(c *gin.Context) {
		called = true
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimit_LimiterFailureLetsRequestThrough(t *testing.T) {
	l, mock, now, sha := newLimiter(t)
	mock.ExpectEvalSha(sha, []string{"rl:GET:/api/v1/sessions/:id:session:abc"},
		now.UnixMilli(), "0.0010000000", "70.0000000000", int64(120000)).
		SetErr(errors.New("connection refused"))

	router := gin.New()
	router.GET("/api/v1/sessions/:id", RateLimit(l, "id"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_NilLimiterIsPassThrough(t *testing.T) {
	router := gin.New()
	router.GET("/ping", RateLimit(nil, "id"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
