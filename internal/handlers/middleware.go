package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// OriginFilter rejects browser requests from origins outside the allow list
// and sets CORS headers for the rest. Requests without an Origin header
// (same-origin navigation, server-to-server calls) pass through untouched.
func OriginFilter(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			// Older WS clients carry the origin in a dedicated header.
			origin = c.GetHeader("Sec-WebSocket-Origin")
		}
		if origin == "" {
			c.Next()
			return
		}

		if !originAllowed(allowedOrigins, origin) {
			log.Warn().Str("module", "handlers").Str("origin", origin).Msg("rejected disallowed origin")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Origin not allowed"})
			return
		}

		header := c.Writer.Header()
		header.Set("Access-Control-Allow-Origin", origin)
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func originAllowed(allowedOrigins []string, origin string) bool {
	for _, allowed := range allowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}
