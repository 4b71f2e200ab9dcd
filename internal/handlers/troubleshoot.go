package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/imyashkale/mcpbridge/internal/troubleshoot"
)

// TroubleshootHandler explains errors and reports the host runtimes
type TroubleshootHandler struct {
	analyzer ErrorAnalyzer
}

// NewTroubleshootHandler creates a new TroubleshootHandler instance
func NewTroubleshootHandler(analyzer ErrorAnalyzer) *TroubleshootHandler {
	return &TroubleshootHandler{analyzer: analyzer}
}

// Analyze classifies an error message
// POST /api/v1/troubleshoot/analyze
func (h *TroubleshootHandler) Analyze(c *gin.Context) {
	var req models.AnalyzeErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, h.analyzer.AnalyzeError(req.Error, troubleshoot.Context{
		Step:     req.Step,
		Provider: req.Provider,
	}))
}

// Common returns the solutions shown before any error happened
// GET /api/v1/troubleshoot/common
func (h *TroubleshootHandler) Common(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"solutions": troubleshoot.CommonSolutions(),
	})
}

// System reports whether Node.js and npm are available for local installs
// GET /api/v1/troubleshoot/system
func (h *TroubleshootHandler) System(c *gin.Context) {
	c.JSON(http.StatusOK, troubleshoot.CheckSystemRequirements(c.Request.Context()))
}
