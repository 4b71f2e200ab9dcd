package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/imyashkale/mcpbridge/internal/config"
	"github.com/imyashkale/mcpbridge/internal/logger"
)

// UserIDKey is the context key the authenticated user id is stored under
const UserIDKey = "user_id"

var ErrInvalidToken = errors.New("invalid token")

// Authentication validates the bearer JWT of every request. In verify mode
// the HS256 signature is checked against secret; in unverified mode the
// token is only decoded, which is meant for local development.
func Authentication(mode, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(authHeader) < len(prefix) || !strings.HasPrefix(authHeader, prefix) {
			logger.WithField("path", c.Request.URL.Path).Warn("Authentication failed: missing or invalid authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Missing or invalid authorization header",
			})
			return
		}

		tokenString := authHeader[len(prefix):]

		// header.payload.signature
		parts := strings.Split(tokenString, ".")
		if len(parts) != 3 {
			logger.WithFields(map[string]interface{}{
				"path":        c.Request.URL.Path,
				"parts_count": len(parts),
			}).Warn("Authentication failed: malformed token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "malformed_token",
				"message": fmt.Sprintf("JWT token must have 3 parts (header.payload.signature), got %d part(s)", len(parts)),
			})
			return
		}

		claims, err := parseClaims(tokenString, mode, secret)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				logger.WithField("path", c.Request.URL.Path).Warn("Authentication failed: token expired")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "token_expired",
					"message": "Token has expired",
				})
				return
			}
			logger.WithFields(map[string]interface{}{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			}).Warn("Authentication failed: invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": fmt.Sprintf("Failed to parse token: %v", err),
			})
			return
		}

		// unverified tokens skip claim validation in the parser
		if exp, ok := claims["exp"].(float64); ok && time.Now().Unix() > int64(exp) {
			logger.WithField("path", c.Request.URL.Path).Warn("Authentication failed: token expired")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "token_expired",
				"message": "Token has expired",
			})
			return
		}

		userID, ok := claims["sub"].(string)
		if !ok || userID == "" {
			logger.WithField("path", c.Request.URL.Path).Warn("Authentication failed: missing user ID in token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "Missing user ID in token",
			})
			return
		}

		c.Set(UserIDKey, userID)
		c.Set("token_claims", claims)

		logger.WithFields(map[string]interface{}{
			"user_id": userID,
			"path":    c.Request.URL.Path,
		}).Debug("Authentication successful")

		c.Next()
	}
}

func parseClaims(tokenString, mode, secret string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}

	if mode == config.AuthModeUnverified {
		parser := jwt.NewParser(jwt.WithoutClaimsValidation())
		if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
			return nil, err
		}
		return claims, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
