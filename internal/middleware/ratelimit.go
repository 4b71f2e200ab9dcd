package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/mcpbridge/internal/ratelimit"
)

// RateLimit charges each request to the bucket of endpointOf(c). Requests
// for which endpointOf returns "" are not limited.
func RateLimit(limiter *ratelimit.Limiter, endpointOf func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := endpointOf(c)
		if endpoint == "" {
			c.Next()
			return
		}

		id := ratelimit.Identifier(
			c.GetString(UserIDKey),
			c.GetHeader("X-Forwarded-For"),
			c.GetHeader("X-Real-IP"),
			c.ClientIP(),
		)
		res := limiter.CheckAndConsume(endpoint, id)

		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
		}

		if !res.Allowed {
			retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests, please try again later",
			})
			return
		}

		c.Next()
	}
}

// ParamEndpoint limits by the value of a path parameter
func ParamEndpoint(name string) func(c *gin.Context) string {
	return func(c *gin.Context) string {
		return c.Param(name)
	}
}

// FixedEndpoint charges every request to one endpoint
func FixedEndpoint(endpoint string) func(c *gin.Context) string {
	return func(*gin.Context) string {
		return endpoint
	}
}
