package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/apierr"
	"github.com/surfsense/surfsense-backend/internal/platform/redisx"
)

// RateLimit enforces a fixed-window per-client limit backed by Redis, so
// the count is shared across replicas. The client key is the gin ClientIP,
// which honours the engine's trusted-proxy configuration. A Redis outage
// fails open: losing rate limiting beats refusing all traffic.
func RateLimit(counter *redisx.RateCounter, limit int64, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := counter.Incr(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warn("rate counter unavailable", "error", err)
			c.Next()
			return
		}
		if n > limit {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{"message": "rate limit exceeded", "code": apierr.CodeRateLimited},
			})
			return
		}
		c.Next()
	}
}
