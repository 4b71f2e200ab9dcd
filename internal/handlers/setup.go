package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/mcpbridge/internal/catalog"
	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/imyashkale/mcpbridge/internal/services"
	"github.com/imyashkale/mcpbridge/internal/setup"
	"github.com/imyashkale/mcpbridge/internal/troubleshoot"
)

// SetupHandler drives the setup wizard sessions
type SetupHandler struct {
	store *setup.Store
}

// NewSetupHandler creates a new SetupHandler instance
func NewSetupHandler(store *setup.Store) *SetupHandler {
	return &SetupHandler{store: store}
}

// Open starts a fresh session. A session in the middle of an installation is not replaced.
// POST /api/v1/setup/session
func (h *SetupHandler) Open(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	s, err := h.store.Open(c.Request.Context(), userId)
	if err != nil {
		writeSetupError(c, err)
		return
	}

	c.JSON(http.StatusCreated, s.Snapshot())
}

// Get returns the current session state
// GET /api/v1/setup/session
func (h *SetupHandler) Get(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// Close discards the session
// DELETE /api/v1/setup/session
func (h *SetupHandler) Close(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	if err := h.store.Close(userId); err != nil {
		writeSetupError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true})
}

// Submit detects the server behind a URL
// POST /api/v1/setup/session/submit
func (h *SetupHandler) Submit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req models.SubmitURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	h.respond(c, func(ctx context.Context) (*models.SetupSnapshot, error) {
		return s.Submit(ctx, req.Url)
	})
}

// Confirm accepts the detected server
// POST /api/v1/setup/session/confirm
func (h *SetupHandler) Confirm(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c, s.Confirm)
}

// Back returns to the previous step
// POST /api/v1/setup/session/back
func (h *SetupHandler) Back(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c, func(context.Context) (*models.SetupSnapshot, error) {
		return s.Back()
	})
}

// Continue installs the server once every required provider is connected
// POST /api/v1/setup/session/continue
func (h *SetupHandler) Continue(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c, s.Continue)
}

// Retry starts over after an error
// POST /api/v1/setup/session/retry
func (h *SetupHandler) Retry(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c, func(context.Context) (*models.SetupSnapshot, error) {
		return s.Retry()
	})
}

// CloudBridge runs the detected server on the cloud bridge
// POST /api/v1/setup/session/cloud-bridge
func (h *SetupHandler) CloudBridge(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c, s.UseCloudBridge)
}

// ConnectProvider opens the authorization popup for a required provider.
// The session picks up the result once the flow settles.
// POST /api/v1/setup/session/oauth/:provider
func (h *SetupHandler) ConnectProvider(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	flow, err := s.ConnectProvider(c.Request.Context(), c.Param("provider"))
	if err != nil {
		writeSetupError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, models.OAuthInitiateResponse{
		AuthorizationUrl: flow.AuthorizationURL,
		State:            flow.State,
	})
}

// ExecuteStep runs a troubleshooting step offered with the session error
// POST /api/v1/setup/session/step
func (h *SetupHandler) ExecuteStep(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req models.ExecuteStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	outcome, err := s.ExecuteStep(c.Request.Context(), req.Step)
	if err != nil {
		writeSetupError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome": outcome,
		"session": s.Snapshot(),
	})
}

func (h *SetupHandler) session(c *gin.Context) (*setup.Session, bool) {
	userId, ok := userID(c)
	if !ok {
		return nil, false
	}

	s, err := h.store.Get(userId)
	if err != nil {
		writeSetupError(c, err)
		return nil, false
	}
	return s, true
}

func (h *SetupHandler) respond(c *gin.Context, action func(ctx context.Context) (*models.SetupSnapshot, error)) {
	snap, err := action(c.Request.Context())
	if err != nil {
		writeSetupError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func writeSetupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, setup.ErrNoSession):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "no_session",
			Message: err.Error(),
		})
	case errors.Is(err, setup.ErrCloseRefused), errors.Is(err, setup.ErrSessionBusy):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "setup_in_progress",
			Message: err.Error(),
		})
	case errors.Is(err, setup.ErrInvalidTransition):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "invalid_transition",
			Message: err.Error(),
		})
	case errors.Is(err, setup.ErrEmptyURL), errors.Is(err, setup.ErrUnknownProvider):
		badRequest(c, err)
	case errors.Is(err, troubleshoot.ErrUnknownIntent), errors.Is(err, troubleshoot.ErrIntentNotHandled):
		badRequest(c, err)
	case errors.Is(err, setup.ErrCloudBridgeUnavailable):
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error:   "cloud_bridge_unavailable",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrPopupBlocked):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "popup_blocked",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrProviderNotConfigured), errors.Is(err, catalog.ErrUnknownProvider):
		badRequest(c, err)
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}
