package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/mcpbridge/internal/logger"
)

// CORS allows the web app at allowedOrigin to call the API. An empty origin allows any.
func CORS(allowedOrigin string) gin.HandlerFunc {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", allowedOrigin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		h.Set("Access-Control-Expose-Headers", "X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")

		if c.Request.Method == http.MethodOptions {
			logger.WithFields(map[string]interface{}{
				"path":   c.Request.URL.Path,
				"origin": c.Request.Header.Get("Origin"),
			}).Debug("CORS preflight request handled")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
