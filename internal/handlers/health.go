package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	service string
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service string) *HealthHandler {
	return &HealthHandler{
		service: service,
		started: time.Now(),
	}
}

// Check handles the health check endpoint
// GET /health
func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   h.service,
		"uptime":    time.Since(h.started).Round(time.Second).String(),
	})
}
