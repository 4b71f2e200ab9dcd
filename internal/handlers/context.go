package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/mcpbridge/internal/middleware"
	"github.com/imyashkale/mcpbridge/internal/models"
)

// userID returns the id the auth middleware stored. When it is missing the
// error response has already been written.
func userID(c *gin.Context) (string, bool) {
	value, exists := c.Get(middleware.UserIDKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "unauthorized",
			Message: "User ID not found in context",
		})
		return "", false
	}

	id, ok := value.(string)
	if !ok || id == "" {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "Invalid user ID format",
		})
		return "", false
	}
	return id, true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid_request",
		Message: err.Error(),
	})
}
