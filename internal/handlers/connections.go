package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/imyashkale/mcpbridge/internal/services"
	"github.com/imyashkale/mcpbridge/internal/troubleshoot"
)

// ErrorAnalyzer explains a failure message to the user
type ErrorAnalyzer interface {
	AnalyzeError(err string, c troubleshoot.Context) models.ErrorAnalysis
}

// ConnectionHandler handles the user's stored server connections
type ConnectionHandler struct {
	connections *services.ConnectionManager
	connector   *services.ServerConnector
	analyzer    ErrorAnalyzer
}

// NewConnectionHandler creates a new ConnectionHandler instance
func NewConnectionHandler(connections *services.ConnectionManager, connector *services.ServerConnector, analyzer ErrorAnalyzer) *ConnectionHandler {
	return &ConnectionHandler{
		connections: connections,
		connector:   connector,
		analyzer:    analyzer,
	}
}

// List returns the user's connections, newest first
// GET /api/v1/connections
func (h *ConnectionHandler) List(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	conns := h.connections.GetUserConnections(c.Request.Context(), userId)
	resp := models.ConnectionListResponse{
		Connections: make([]models.MCPConnection, 0, len(conns)),
	}
	for _, conn := range conns {
		resp.Connections = append(resp.Connections, *conn)
	}
	resp.Total = len(resp.Connections)

	c.JSON(http.StatusOK, resp)
}

// Save stores a server configuration without starting it
// POST /api/v1/connections
func (h *ConnectionHandler) Save(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	var cfg models.ServerConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		badRequest(c, err)
		return
	}

	conn, err := h.connections.SaveConnection(c.Request.Context(), userId, cfg)
	if err != nil {
		badRequest(c, err)
		return
	}
	if conn == nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to save connection",
		})
		return
	}

	c.JSON(http.StatusCreated, conn)
}

// Connect starts a saved connection
// POST /api/v1/connections/:server_id/connect
func (h *ConnectionHandler) Connect(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	conn, err := h.connector.Reconnect(c.Request.Context(), userId, c.Param("server_id"))
	if err != nil {
		var connectErr *services.ConnectError
		if errors.As(err, &connectErr) {
			analysis := h.analyzer.AnalyzeError(connectErr.Reason, troubleshoot.Context{Step: string(models.StepInstallation)})
			c.JSON(http.StatusBadGateway, gin.H{
				"error":      "connection_failed",
				"message":    connectErr.Reason,
				"connection": conn,
				"analysis":   analysis,
			})
			return
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, conn)
}

// Disconnect stops a connection and keeps it stored
// POST /api/v1/connections/:server_id/disconnect
func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	conn, err := h.connector.Disconnect(c.Request.Context(), userId, c.Param("server_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, conn)
}

// Delete disconnects and removes a connection
// DELETE /api/v1/connections/:server_id
func (h *ConnectionHandler) Delete(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	if err := h.connector.Remove(c.Request.Context(), userId, c.Param("server_id")); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: "Connection deleted",
	})
}

func (h *ConnectionHandler) writeError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrUnknownConnection) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: err.Error(),
	})
}
