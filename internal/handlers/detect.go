package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/mcpbridge/internal/catalog"
	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/imyashkale/mcpbridge/internal/services"
)

// ServerDetector turns a repository or package URL into a server descriptor
type ServerDetector interface {
	DetectFromURL(ctx context.Context, rawURL string) *models.ServerInfo
	Scorer() *services.ConfidenceScorer
}

// DetectHandler handles server detection and the predefined server catalog
type DetectHandler struct {
	detector ServerDetector
	catalog  *catalog.Catalog
}

// NewDetectHandler creates a new DetectHandler instance
func NewDetectHandler(detector ServerDetector, cat *catalog.Catalog) *DetectHandler {
	return &DetectHandler{
		detector: detector,
		catalog:  cat,
	}
}

// Detect inspects a GitHub or npm URL
// POST /api/v1/detect
func (h *DetectHandler) Detect(c *gin.Context) {
	var req models.SubmitURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if strings.TrimSpace(req.Url) == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "url is required",
		})
		return
	}

	info := h.detector.DetectFromURL(c.Request.Context(), req.Url)
	if info == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_detected",
			Message: "Could not detect an MCP server from this URL. Please check the URL and try again.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"server_info":        info,
		"confidence_percent": services.Percent(info.Confidence),
		"needs_confirmation": !h.detector.Scorer().Confirmed(info.Confidence),
	})
}

// Servers lists the predefined servers
// GET /api/v1/catalog/servers
func (h *DetectHandler) Servers(c *gin.Context) {
	servers := h.catalog.PredefinedServers
	if servers == nil {
		servers = []catalog.PredefinedServer{}
	}
	c.JSON(http.StatusOK, gin.H{
		"servers": servers,
		"total":   len(servers),
	})
}
