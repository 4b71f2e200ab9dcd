package handlers

import (
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/mcpbridge/internal/catalog"
	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/imyashkale/mcpbridge/internal/services"
)

const callbackPage = `<!DOCTYPE html>
<html><head><title>%s</title></head>
<body><p>%s</p><script>window.close();</script></body></html>`

// OAuthHandler handles provider authorization and the stored OAuth connections
type OAuthHandler struct {
	oauth     *services.OAuthManager
	exchanger *services.TokenExchanger
}

// NewOAuthHandler creates a new OAuthHandler instance
func NewOAuthHandler(oauth *services.OAuthManager, exchanger *services.TokenExchanger) *OAuthHandler {
	return &OAuthHandler{
		oauth:     oauth,
		exchanger: exchanger,
	}
}

type initiateOAuthRequest struct {
	ServerContext string `json:"server_context"`
}

// Initiate opens an authorization popup for a provider. The flow settles in
// the background once the callback arrives or the popup is closed.
// POST /api/v1/oauth/:provider/initiate
func (h *OAuthHandler) Initiate(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}
	providerID := c.Param("provider")

	var req initiateOAuthRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	flow, err := h.oauth.StartOAuth(userId, providerID, req.ServerContext)
	if err != nil {
		writeOAuthError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, models.OAuthInitiateResponse{
		AuthorizationUrl: flow.AuthorizationURL,
		State:            flow.State,
	})
}

// Callback receives the provider redirect. It is not authenticated; the
// state parameter ties it to the user and provider that started the flow.
// Providers send only code and state; provider is accepted when present.
// GET /auth/oauth-callback
func (h *OAuthHandler) Callback(c *gin.Context) {
	providerID := c.Query("provider")
	state := c.Query("state")

	log := logger.WithFields(map[string]interface{}{
		"provider": providerID,
	})

	if reason := c.Query("error"); reason != "" {
		if desc := c.Query("error_description"); desc != "" {
			reason = desc
		}
		if err := h.oauth.AbortOAuth(providerID, state, reason); err != nil {
			log.WithError(err).Warn("OAuth error callback with invalid state")
		}
		renderCallback(c, http.StatusBadRequest, "Authorization failed", reason)
		return
	}

	code := c.Query("code")
	if state == "" || code == "" {
		renderCallback(c, http.StatusBadRequest, "Authorization failed", "Missing code or state parameter")
		return
	}

	if _, err := h.oauth.HandleOAuthCallback(c.Request.Context(), providerID, code, state); err != nil {
		log.WithError(err).Warn("OAuth callback failed")
		renderCallback(c, http.StatusBadRequest, "Authorization failed", err.Error())
		return
	}

	renderCallback(c, http.StatusOK, "Authorization complete", "You can close this window.")
}

func renderCallback(c *gin.Context, status int, title, message string) {
	page := fmt.Sprintf(callbackPage, html.EscapeString(title), html.EscapeString(message))
	c.Data(status, "text/html; charset=utf-8", []byte(page))
}

// ClosePopup reports that the user closed the authorization window
// POST /api/v1/oauth/popups/:state/close
func (h *OAuthHandler) ClosePopup(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	if err := h.oauth.ReportPopupClosed(userId, c.Param("state")); err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "invalid_state",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true})
}

// Providers lists the OAuth providers
// GET /api/v1/oauth/providers
func (h *OAuthHandler) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"providers": h.oauth.Providers(),
	})
}

// Connections lists the user's provider connections
// GET /api/v1/oauth/connections
func (h *OAuthHandler) Connections(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	conns, err := h.oauth.GetConnections(c.Request.Context(), userId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: err.Error(),
		})
		return
	}
	if conns == nil {
		conns = []*models.OAuthConnection{}
	}

	c.JSON(http.StatusOK, gin.H{
		"connections": conns,
		"total":       len(conns),
	})
}

// Requirements partitions providers into connected and missing
// POST /api/v1/oauth/requirements
func (h *OAuthHandler) Requirements(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	var req models.RequiredConnectionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, h.oauth.CheckRequiredConnections(c.Request.Context(), userId, req.Providers))
}

// Refresh refreshes the provider token when it is close to expiry
// POST /api/v1/oauth/:provider/refresh
func (h *OAuthHandler) Refresh(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	refreshed, err := h.oauth.RefreshTokensIfNeeded(c.Request.Context(), userId, c.Param("provider"))
	if err != nil {
		writeOAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"refreshed": refreshed,
	})
}

// Disconnect deletes the stored provider connection
// DELETE /api/v1/oauth/:provider
func (h *OAuthHandler) Disconnect(c *gin.Context) {
	userId, ok := userID(c)
	if !ok {
		return
	}

	if err := h.oauth.Disconnect(c.Request.Context(), userId, c.Param("provider")); err != nil {
		writeOAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: "Provider disconnected",
	})
}

// Exchange trades an authorization code for tokens on behalf of the caller
// POST /api/v1/oauth/exchange
func (h *OAuthHandler) Exchange(c *gin.Context) {
	var req models.TokenExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tokens, err := h.exchanger.Exchange(c.Request.Context(), req.Provider, req.Code, req.RedirectUri)
	if err != nil {
		writeOAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}

// RefreshToken trades a refresh token for a new access token
// POST /api/v1/oauth/refresh
func (h *OAuthHandler) RefreshToken(c *gin.Context) {
	var req models.TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tokens, err := h.exchanger.Refresh(c.Request.Context(), req.Provider, req.RefreshToken)
	if err != nil {
		writeOAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}

func writeOAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrUnknownProvider):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "unknown_provider",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrConnectionNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_connected",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrProviderNotConfigured):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "provider_not_configured",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrPopupBlocked):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "popup_blocked",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrTokenExchangeFailed), errors.Is(err, services.ErrTokenRefreshFailed):
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "token_exchange_failed",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}
