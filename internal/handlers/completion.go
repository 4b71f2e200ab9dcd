package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/imyashkale/mcpbridge/internal/services"
)

// CompletionHandler forwards AI requests to the completion service
type CompletionHandler struct {
	proxy     *services.CompletionProxy
	endpoints map[string]bool
}

// NewCompletionHandler creates a new CompletionHandler that forwards only the listed endpoints
func NewCompletionHandler(proxy *services.CompletionProxy, endpoints ...string) *CompletionHandler {
	allowed := make(map[string]bool, len(endpoints))
	for _, e := range endpoints {
		allowed[e] = true
	}
	return &CompletionHandler{
		proxy:     proxy,
		endpoints: allowed,
	}
}

// Forward relays the request body and returns the service reply unchanged
// POST /api/v1/ai/:endpoint
func (h *CompletionHandler) Forward(c *gin.Context) {
	endpoint := c.Param("endpoint")
	if !h.endpoints[endpoint] {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "unknown_endpoint",
			Message: "Unknown AI endpoint: " + endpoint,
		})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.proxy.Forward(c.Request.Context(), endpoint, body)
	if err != nil {
		if errors.Is(err, services.ErrCompletionNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
				Error:   "not_configured",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "completion_failed",
			Message: err.Error(),
		})
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}
