package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/imyashkale/mcpbridge/internal/catalog"
	"github.com/imyashkale/mcpbridge/internal/config"
	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
	"golang.org/x/oauth2"
)

var (
	ErrProviderNotConfigured = errors.New("oauth client not configured")
	ErrTokenExchangeFailed   = errors.New("token exchange failed")
	ErrTokenRefreshFailed    = errors.New("token refresh failed")
)

// TokenExchanger talks to provider token endpoints. Client secrets stay on the server.
type TokenExchanger struct {
	catalog     *catalog.Catalog
	clients     map[string]config.OAuthClient
	redirectURL string
	httpClient  *http.Client
	now         func() time.Time
}

// NewTokenExchanger creates a new TokenExchanger. A nil httpClient uses a 30 second timeout.
func NewTokenExchanger(cat *catalog.Catalog, clients map[string]config.OAuthClient, redirectURL string, httpClient *http.Client) *TokenExchanger {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenExchanger{
		catalog:     cat,
		clients:     clients,
		redirectURL: redirectURL,
		httpClient:  httpClient,
		now:         time.Now,
	}
}

// Configured reports whether a client id is set for the provider
func (e *TokenExchanger) Configured(providerID string) bool {
	client, ok := e.clients[providerID]
	return ok && client.ClientID != ""
}

func (e *TokenExchanger) oauthConfig(providerID string, needSecret bool) (*oauth2.Config, catalog.Provider, error) {
	provider, err := e.catalog.Provider(providerID)
	if err != nil {
		return nil, catalog.Provider{}, err
	}
	client, ok := e.clients[providerID]
	if !ok || client.ClientID == "" || (needSecret && client.ClientSecret == "") {
		return nil, provider, fmt.Errorf("%w for %s", ErrProviderNotConfigured, provider.Name)
	}

	return &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   provider.AuthURL,
			TokenURL:  provider.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: e.redirectURL,
		Scopes:      provider.Scopes,
	}, provider, nil
}

// AuthCodeURL builds the provider authorize URL carrying client id, redirect
// URI, space-joined scopes, state and response_type=code
func (e *TokenExchanger) AuthCodeURL(providerID, state string) (string, error) {
	cfg, _, err := e.oauthConfig(providerID, false)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state), nil
}

// Exchange trades an authorization code for tokens. An empty redirectURI uses the configured one.
func (e *TokenExchanger) Exchange(ctx context.Context, providerID, code, redirectURI string) (*models.OAuthTokens, error) {
	cfg, provider, err := e.oauthConfig(providerID, true)
	if err != nil {
		return nil, err
	}

	var opts []oauth2.AuthCodeOption
	if redirectURI != "" && redirectURI != cfg.RedirectURL {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}

	tok, err := cfg.Exchange(e.clientContext(ctx), code, opts...)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"provider": providerID,
			"error":    err.Error(),
		}).Error("OAuth code exchange failed")
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}

	logger.WithField("provider", providerID).Info("OAuth code exchanged")
	return e.normalize(provider, tok), nil
}

// Refresh trades a refresh token for a new access token. Providers that do
// not rotate refresh tokens keep the one that was sent.
func (e *TokenExchanger) Refresh(ctx context.Context, providerID, refreshToken string) (*models.OAuthTokens, error) {
	cfg, provider, err := e.oauthConfig(providerID, true)
	if err != nil {
		return nil, err
	}

	src := cfg.TokenSource(e.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"provider": providerID,
			"error":    err.Error(),
		}).Error("OAuth token refresh failed")
		return nil, fmt.Errorf("%w: %v", ErrTokenRefreshFailed, err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}

	logger.WithField("provider", providerID).Info("OAuth token refreshed")
	return e.normalize(provider, tok), nil
}

func (e *TokenExchanger) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

func (e *TokenExchanger) normalize(provider catalog.Provider, tok *oauth2.Token) *models.OAuthTokens {
	out := &models.OAuthTokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scopes:       parseScopes(tok.Extra("scope"), provider),
		Metadata: map[string]interface{}{
			"token_type": tok.TokenType,
			"provider":   provider.ID,
		},
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		out.ExpiresAt = &exp
	}
	return out
}

// parseScopes splits the granted scope string with the provider separator,
// falling back to the requested scopes when none were echoed
func parseScopes(raw interface{}, provider catalog.Provider) []string {
	s, _ := raw.(string)
	if strings.TrimSpace(s) == "" {
		return append([]string(nil), provider.Scopes...)
	}

	sep := provider.ScopeSeparator
	if sep == "" {
		sep = " "
	}
	var scopes []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			scopes = append(scopes, part)
		}
	}
	return scopes
}
