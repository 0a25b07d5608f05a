package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gustavodarosa/KidGo/pkg/common"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"github.com/gustavodarosa/KidGo/pkg/ratelimit"
	"go.uber.org/zap"
)

// RateLimit limits requests per session, or per client IP on routes without
// a session. Limiter failures let the request through.
func RateLimit(limiter *ratelimit.Limiter, sessionParam string) gin.HandlerFunc {
	if !limiter.Enabled() {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		endpoint := fmt.Sprintf("%s:%s", c.Request.Method, path)

		identity := "ip:" + c.ClientIP()
		if id := c.Param(sessionParam); id != "" {
			identity = "session:" + id
		}

		rule := limiter.RuleFor(endpoint)
		result, err := limiter.Allow(c.Request.Context(), endpoint, identity, rule)
		if err != nil {
			logger.WarnContext(c.Request.Context(), "rate limit evaluation failed",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(seconds(result.ResetAfter)))

		if result.Allowed {
			c.Next()
			return
		}

		retry := seconds(result.RetryAfter)
		if retry <= 0 {
			retry = 1
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		logger.WarnContext(c.Request.Context(), "rate limit exceeded",
			zap.String("endpoint", endpoint),
			zap.String("identity", identity),
			zap.Int("retry_after_seconds", retry),
		)

		common.ErrorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
		c.Abort()
	}
}

func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d.Round(time.Second) / time.Second)
}
