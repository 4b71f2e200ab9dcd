package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/mcpbridge/internal/bridge"
	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
)

// BridgeHandler exposes the process registry as the tool-call RPC surface
type BridgeHandler struct {
	registry *bridge.Registry
}

// NewBridgeHandler creates a new BridgeHandler instance
func NewBridgeHandler(registry *bridge.Registry) *BridgeHandler {
	return &BridgeHandler{registry: registry}
}

// Connect starts a server process for the caller. A process that fails to
// start is reported in the body, not the status code.
// POST /api/v1/mcp/connect
func (h *BridgeHandler) Connect(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	var req models.BridgeConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.registry.Connect(c.Request.Context(), userId, req); err != nil {
		if errors.Is(err, bridge.ErrInvalidConfig) {
			badRequest(c, err)
			return
		}
		c.JSON(http.StatusOK, models.BridgeResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.BridgeResponse{Success: true})
}

// Disconnect stops a server process
// POST /api/v1/mcp/disconnect
func (h *BridgeHandler) Disconnect(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	var req models.BridgeDisconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.registry.Disconnect(userId, req.ServerId); err != nil {
		logger.WithFields(map[string]interface{}{
			"user_id":   userId,
			"server_id": req.ServerId,
			"error":     err.Error(),
		}).Warn("Server process did not close cleanly")
	}

	c.JSON(http.StatusOK, models.BridgeResponse{Success: true})
}

// Tools lists the tools of a running server
// GET /api/v1/mcp/tools?serverId=
func (h *BridgeHandler) Tools(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	serverId := c.Query("serverId")
	if serverId == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "serverId query parameter is required",
		})
		return
	}

	tools, err := h.registry.Tools(c.Request.Context(), userId, serverId)
	if err != nil {
		if errors.Is(err, bridge.ErrNotConnected) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_connected",
				Message: "Server not connected",
			})
			return
		}
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "list_tools_failed",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.ToolListResponse{Tools: tools})
}

// Execute runs a tool. Failures come back as {success:false, error}.
// POST /api/v1/mcp/execute
func (h *BridgeHandler) Execute(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	var req models.ToolCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, h.registry.Execute(c.Request.Context(), userId, req))
}

// Running lists the caller's running server ids
// GET /api/v1/mcp/servers
func (h *BridgeHandler) Running(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"servers": h.registry.Running(userId),
	})
}
