package models

import "time"

// OAuthConnection is the stored grant for one (user, provider) pair
type OAuthConnection struct {
	Id           string                 `json:"id"`
	UserId       string                 `json:"user_id"`
	ProviderId   string                 `json:"provider_id"`
	ProviderName string                 `json:"provider_name"`
	AccessToken  string                 `json:"-"`
	RefreshToken string                 `json:"-"`
	ExpiresAt    *time.Time             `json:"expires_at,omitempty"`
	Scopes       []string               `json:"scopes"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// ExpiresWithin reports whether the token expires within d of now.
// Tokens without an expiry never do.
func (c *OAuthConnection) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Before(now.Add(d))
}

// OAuthTokens is the normalized result of a code exchange or refresh
type OAuthTokens struct {
	AccessToken  string                 `json:"access_token"`
	RefreshToken string                 `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time             `json:"expires_at,omitempty"`
	Scopes       []string               `json:"scopes"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// OAuthInitiateResponse is returned when a popup flow has been opened
type OAuthInitiateResponse struct {
	AuthorizationUrl string `json:"authorization_url"`
	State            string `json:"state"`
}

// TokenExchangeRequest is the body of the token-exchange proxy endpoint
type TokenExchangeRequest struct {
	Provider    string `json:"provider" binding:"required"`
	Code        string `json:"code" binding:"required"`
	RedirectUri string `json:"redirect_uri"`
}

// TokenRefreshRequest is the body of the token-refresh proxy endpoint
type TokenRefreshRequest struct {
	Provider     string `json:"provider" binding:"required"`
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RequiredConnectionsRequest lists provider ids to check
type RequiredConnectionsRequest struct {
	Providers []string `json:"providers" binding:"required"`
}

// RequiredConnectionsResponse partitions the requested providers
type RequiredConnectionsResponse struct {
	Connected    []string `json:"connected"`
	Missing      []string `json:"missing"`
	AllConnected bool     `json:"all_connected"`
}

// ProviderResponse describes a provider to API clients
type ProviderResponse struct {
	Id           string   `json:"id"`
	Name         string   `json:"name"`
	Scopes       []string `json:"scopes"`
	Instructions string   `json:"instructions"`
	Configured   bool     `json:"configured"`
}
