package middleware

import (
	"entitlement-api/internal/config"
	"entitlement-api/internal/response"
	"entitlement-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// ClientAuthMiddleware validates the caller's service API key and records the
// acting user identity for downstream handlers and admission keying. An empty
// configured key disables the check, which only makes sense for development
// and is logged as such at startup.
func ClientAuthMiddleware() gin.HandlerFunc {
	if config.AppConfig.APIKey == "" {
		logging.Warnf("API_KEY not set, client authentication disabled")
	}

	return func(c *gin.Context) {
		if config.AppConfig.APIKey != "" {
			apiKey := c.GetHeader("X-API-Key")
			if apiKey == "" {
				apiKey = c.Query("api_key")
			}
			if apiKey != config.AppConfig.APIKey {
				response.Unauthorized(c, "Missing or invalid api key")
				c.Abort()
				return
			}
		}

		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	}
}
