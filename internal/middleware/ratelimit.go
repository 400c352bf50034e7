package middleware

import (
	"fmt"
	"time"

	"entitlement-api/internal/response"
	"entitlement-api/internal/services"
	"entitlement-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// RateLimit is the admission controller: a fixed-window counter per (client
// identity, route class). A request past the ceiling is rejected immediately
// with a retry-after hint; nothing is queued or delayed. A counter store
// failure fails open — admission protects cost, it is not a security control.
func RateLimit(counters services.CounterStore, class string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.GetString("user_id")
		if identity == "" {
			identity = c.ClientIP()
		}

		key := fmt.Sprintf("ratelimit:%s:%s", class, identity)
		count, err := counters.Incr(c.Request.Context(), key, window)
		if err != nil {
			logging.Warnf("Admission counter failed for %s, letting request through: %v", key, err)
			c.Next()
			return
		}

		if count > int64(limit) {
			response.RateLimited(c, int(window.Seconds()))
			c.Abort()
			return
		}

		c.Next()
	}
}
