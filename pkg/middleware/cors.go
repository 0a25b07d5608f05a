package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows the comma-separated origins, or any origin when the list is "*".
func CORS(origins string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()

	allowed := make([]string, 0)
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}

	switch {
	case len(allowed) == 1 && allowed[0] == "*":
		cfg.AllowAllOrigins = true
	case len(allowed) == 0:
		cfg.AllowOrigins = []string{"http://localhost:3000"}
	default:
		cfg.AllowOrigins = allowed
		cfg.AllowCredentials = true
	}

	cfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", CorrelationIDHeader}
	cfg.ExposeHeaders = []string{CorrelationIDHeader, "X-Trace-ID"}
	cfg.MaxAge = 12 * time.Hour

	return cors.New(cfg)
}
