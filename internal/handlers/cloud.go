package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/imyashkale/mcpbridge/internal/repository"
	"github.com/imyashkale/mcpbridge/internal/services"
)

// CloudHandler handles cloud bridge instances
type CloudHandler struct {
	cloud *services.CloudBridgeClient
	oauth *services.OAuthManager
}

// NewCloudHandler creates a new CloudHandler instance
func NewCloudHandler(cloud *services.CloudBridgeClient, oauth *services.OAuthManager) *CloudHandler {
	return &CloudHandler{
		cloud: cloud,
		oauth: oauth,
	}
}

type cloudExecuteRequest struct {
	ToolName  string                 `json:"toolName" binding:"required"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Status reports whether the cloud bridge is reachable
// GET /api/v1/cloud/status
func (h *CloudHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"available": h.cloud.IsAvailable(c.Request.Context()),
	})
}

// List returns the user's instances, newest first
// GET /api/v1/cloud/instances
func (h *CloudHandler) List(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	instances := h.cloud.GetUserInstances(c.Request.Context(), userId)
	resp := models.InstanceListResponse{
		Instances: make([]models.CloudBridgeInstance, 0, len(instances)),
	}
	for _, inst := range instances {
		resp.Instances = append(resp.Instances, *inst)
	}
	resp.Total = len(resp.Instances)

	c.JSON(http.StatusOK, resp)
}

// Create provisions an instance for a detected server. Tokens of the
// providers the user has connected are passed along.
// POST /api/v1/cloud/instances
func (h *CloudHandler) Create(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	var req models.CreateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.ServerInfo.ID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "server_info.id is required",
		})
		return
	}

	ctx := c.Request.Context()
	required := h.oauth.CheckRequiredConnections(ctx, userId, req.ServerInfo.ProviderIDs())
	tokens, err := h.oauth.AccessTokens(ctx, userId, required.Connected)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "token_lookup_failed",
			Message: err.Error(),
		})
		return
	}

	inst, err := h.cloud.CreateInstance(ctx, userId, req.ServerInfo, tokens)
	if err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "provisioning_failed",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, inst)
}

// Refresh polls the remote status of an instance
// POST /api/v1/cloud/instances/:id/refresh
func (h *CloudHandler) Refresh(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	inst, err := h.cloud.RefreshInstance(c.Request.Context(), userId, c.Param("id"))
	if err != nil {
		writeCloudError(c, err)
		return
	}

	c.JSON(http.StatusOK, inst)
}

// Tools lists the tools of a running instance
// GET /api/v1/cloud/instances/:id/tools
func (h *CloudHandler) Tools(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	tools, err := h.cloud.ListInstanceTools(c.Request.Context(), userId, c.Param("id"))
	if err != nil {
		writeCloudError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ToolListResponse{Tools: tools})
}

// Execute calls a tool on a running instance
// POST /api/v1/cloud/instances/:id/execute
func (h *CloudHandler) Execute(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	var req cloudExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, h.cloud.ExecuteToolCall(c.Request.Context(), userId, c.Param("id"), req.ToolName, req.Arguments))
}

// Delete destroys an instance
// DELETE /api/v1/cloud/instances/:id
func (h *CloudHandler) Delete(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	if err := h.cloud.DestroyInstance(c.Request.Context(), userId, c.Param("id")); err != nil {
		writeCloudError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: "Instance destroyed",
	})
}

func writeCloudError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInstanceNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrInstanceNotRunning), errors.Is(err, repository.ErrConflict):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "invalid_status",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrCloudBridgeRequest):
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "cloud_bridge_error",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}
