package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/imyashkale/mcpbridge/internal/catalog"
	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/imyashkale/mcpbridge/internal/repository"
)

var (
	ErrInvalidOAuthState     = errors.New("invalid oauth state parameter")
	ErrOAuthCancelled        = errors.New("oauth flow was cancelled")
	ErrOAuthTimeout          = errors.New("oauth flow timed out")
	ErrOAuthAccessDenied     = errors.New("oauth access denied by user")
	ErrConnectionNotFound    = errors.New("oauth connection not found")
	ErrProviderConnectionReq = errors.New("connection required but not found")
)

const (
	defaultPollInterval = time.Second
	defaultFlowTimeout  = 5 * time.Minute
	refreshWindow       = time.Hour
)

// OAuthOption configures an OAuthManager
type OAuthOption func(*OAuthManager)

// WithPollInterval sets how often the popup is checked for closure
func WithPollInterval(d time.Duration) OAuthOption {
	return func(m *OAuthManager) { m.pollInterval = d }
}

// WithFlowTimeout sets the hard limit of one authorization flow
func WithFlowTimeout(d time.Duration) OAuthOption {
	return func(m *OAuthManager) { m.flowTimeout = d }
}

// WithOAuthClock replaces time.Now
func WithOAuthClock(now func() time.Time) OAuthOption {
	return func(m *OAuthManager) { m.now = now }
}

// OAuthManager runs popup authorization flows and owns the stored OAuth connections
type OAuthManager struct {
	catalog   *catalog.Catalog
	exchanger *TokenExchanger
	repo      repository.OAuthConnectionRepository
	cipher    *TokenCipher
	opener    PopupOpener
	pending   *pendingTable

	pollInterval time.Duration
	flowTimeout  time.Duration
	now          func() time.Time
}

// NewOAuthManager creates a new OAuthManager
func NewOAuthManager(
	cat *catalog.Catalog,
	exchanger *TokenExchanger,
	repo repository.OAuthConnectionRepository,
	cipher *TokenCipher,
	opener PopupOpener,
	opts ...OAuthOption,
) *OAuthManager {
	m := &OAuthManager{
		catalog:      cat,
		exchanger:    exchanger,
		repo:         repo,
		cipher:       cipher,
		opener:       opener,
		pending:      newPendingTable(),
		pollInterval: defaultPollInterval,
		flowTimeout:  defaultFlowTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OAuthFlow is a started authorization waiting on its popup
type OAuthFlow struct {
	State            string
	AuthorizationURL string

	popup  Popup
	result chan error
}

// Done delivers the outcome exactly once: nil, ErrOAuthCancelled,
// ErrOAuthTimeout or the error the callback failed with
func (f *OAuthFlow) Done() <-chan error {
	return f.result
}

// Wait blocks until the flow settles. Cancelling ctx closes the popup.
func (f *OAuthFlow) Wait(ctx context.Context) error {
	select {
	case err := <-f.result:
		return err
	case <-ctx.Done():
		f.popup.Close()
		return ctx.Err()
	}
}

// InitiateOAuth opens the popup for providerID and blocks until the user
// completes or abandons the authorization
func (m *OAuthManager) InitiateOAuth(ctx context.Context, userID, providerID, serverContext string) error {
	flow, err := m.StartOAuth(userID, providerID, serverContext)
	if err != nil {
		return err
	}
	return flow.Wait(ctx)
}

// StartOAuth opens the popup and returns immediately; the flow is watched in the background
func (m *OAuthManager) StartOAuth(userID, providerID, serverContext string) (*OAuthFlow, error) {
	state, err := newState(serverContext)
	if err != nil {
		return nil, err
	}
	authURL, err := m.exchanger.AuthCodeURL(providerID, state)
	if err != nil {
		return nil, err
	}

	popup, err := m.opener.Open(state, authURL, PopupWidth, PopupHeight)
	if err != nil || popup == nil {
		logger.WithFields(map[string]interface{}{
			"user_id":  userID,
			"provider": providerID,
		}).Warn("OAuth popup could not be opened")
		return nil, ErrPopupBlocked
	}

	p := &pendingAuth{
		state:      state,
		userID:     userID,
		providerID: providerID,
		popup:      popup,
		createdAt:  m.now(),
	}
	m.pending.add(p)

	flow := &OAuthFlow{
		State:            state,
		AuthorizationURL: authURL,
		popup:            popup,
		result:           make(chan error, 1),
	}
	go m.monitor(p, flow.result)

	logger.WithFields(map[string]interface{}{
		"user_id":  userID,
		"provider": providerID,
	}).Info("OAuth flow started")
	return flow, nil
}

// monitor polls the popup until it closes or the flow times out. Both paths
// leave through the same cleanup so the result is delivered once.
func (m *OAuthManager) monitor(p *pendingAuth, result chan<- error) {
	ticker := time.NewTicker(m.pollInterval)
	timeout := time.NewTimer(m.flowTimeout)
	defer ticker.Stop()
	defer timeout.Stop()
	defer m.pending.remove(p.state)

	log := logger.WithFields(map[string]interface{}{
		"user_id":  p.userID,
		"provider": p.providerID,
	})

	for {
		select {
		case <-ticker.C:
			if !p.popup.Closed() {
				continue
			}
			succeeded, failure := p.outcome()
			switch {
			case succeeded:
				log.Info("OAuth flow completed")
				result <- nil
			case failure != nil:
				log.WithField("error", failure.Error()).Warn("OAuth flow failed")
				result <- failure
			default:
				log.Info("OAuth flow cancelled by user")
				result <- ErrOAuthCancelled
			}
			return
		case <-timeout.C:
			p.popup.Close()
			log.Warn("OAuth flow timed out")
			result <- ErrOAuthTimeout
			return
		}
	}
}

// HandleOAuthCallback validates state, exchanges the code, stores the tokens
// and closes the popup. Providers redirect with only code and state, so an
// empty providerID is resolved from the pending flow. A state that is unknown,
// already used, or issued for another provider is rejected with ErrInvalidOAuthState.
func (m *OAuthManager) HandleOAuthCallback(ctx context.Context, providerID, code, state string) (*models.OAuthTokens, error) {
	p, ok := m.pending.claim(state, providerID)
	if !ok {
		logger.WithField("provider", providerID).Warn("OAuth callback with invalid state")
		return nil, ErrInvalidOAuthState
	}

	tokens, err := m.exchanger.Exchange(ctx, p.providerID, code, "")
	if err == nil {
		err = m.storeTokens(ctx, p.userID, p.providerID, tokens)
	}
	p.finish(err)
	p.popup.Close()
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// AbortOAuth settles a flow whose provider redirected back with an error.
// As with the callback, an empty providerID is taken from the pending flow.
func (m *OAuthManager) AbortOAuth(providerID, state, reason string) error {
	p, ok := m.pending.claim(state, providerID)
	if !ok {
		return ErrInvalidOAuthState
	}
	p.finish(fmt.Errorf("%w: %s", ErrOAuthAccessDenied, reason))
	p.popup.Close()
	return nil
}

// ReportPopupClosed records that the user closed the authorization window
func (m *OAuthManager) ReportPopupClosed(userID, state string) error {
	p, ok := m.pending.get(state)
	if !ok || p.userID != userID {
		return ErrInvalidOAuthState
	}
	p.popup.Close()
	return nil
}

// PendingFlows returns the number of flows waiting on a popup
func (m *OAuthManager) PendingFlows() int {
	return m.pending.len()
}

func (m *OAuthManager) storeTokens(ctx context.Context, userID, providerID string, tokens *models.OAuthTokens) error {
	provider, err := m.catalog.Provider(providerID)
	if err != nil {
		return err
	}
	access, err := m.cipher.Encrypt(tokens.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := m.cipher.Encrypt(tokens.RefreshToken)
	if err != nil {
		return err
	}

	now := m.now()
	conn := &models.OAuthConnection{
		Id:           uuid.New().String(),
		UserId:       userID,
		ProviderId:   providerID,
		ProviderName: provider.Name,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    tokens.ExpiresAt,
		Scopes:       tokens.Scopes,
		Metadata:     tokens.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.repo.Upsert(ctx, conn); err != nil {
		return fmt.Errorf("failed to store oauth tokens: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"user_id":  userID,
		"provider": providerID,
	}).Info("OAuth connection stored")
	return nil
}

// GetConnection returns the stored connection with decrypted tokens
func (m *OAuthManager) GetConnection(ctx context.Context, userID, providerID string) (*models.OAuthConnection, error) {
	conn, err := m.repo.Get(ctx, userID, providerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, err
	}

	if conn.AccessToken, err = m.cipher.Decrypt(conn.AccessToken); err != nil {
		return nil, err
	}
	if conn.RefreshToken, err = m.cipher.Decrypt(conn.RefreshToken); err != nil {
		return nil, err
	}
	return conn, nil
}

// GetConnections lists a user's provider connections. Tokens are never serialized.
func (m *OAuthManager) GetConnections(ctx context.Context, userID string) ([]*models.OAuthConnection, error) {
	return m.repo.GetByUserId(ctx, userID)
}

// Disconnect deletes the stored connection for a provider
func (m *OAuthManager) Disconnect(ctx context.Context, userID, providerID string) error {
	if err := m.repo.Delete(ctx, userID, providerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrConnectionNotFound
		}
		return err
	}
	logger.WithFields(map[string]interface{}{
		"user_id":  userID,
		"provider": providerID,
	}).Info("OAuth provider disconnected")
	return nil
}

// RefreshTokensIfNeeded refreshes a token that expires within the hour.
// It does nothing when no refresh token is stored or the expiry is further away.
func (m *OAuthManager) RefreshTokensIfNeeded(ctx context.Context, userID, providerID string) (bool, error) {
	conn, err := m.GetConnection(ctx, userID, providerID)
	if err != nil {
		if errors.Is(err, ErrConnectionNotFound) {
			return false, nil
		}
		return false, err
	}
	if conn.RefreshToken == "" {
		return false, nil
	}
	if conn.ExpiresAt != nil && !conn.ExpiresWithin(m.now(), refreshWindow) {
		return false, nil
	}

	tokens, err := m.exchanger.Refresh(ctx, providerID, conn.RefreshToken)
	if err != nil {
		return false, err
	}
	if err := m.storeTokens(ctx, userID, providerID, tokens); err != nil {
		return false, err
	}
	return true, nil
}

// AccessTokens returns the decrypted access token of every listed provider
func (m *OAuthManager) AccessTokens(ctx context.Context, userID string, providers []string) (map[string]string, error) {
	tokens := make(map[string]string, len(providers))
	for _, providerID := range providers {
		conn, err := m.GetConnection(ctx, userID, providerID)
		if err != nil {
			if errors.Is(err, ErrConnectionNotFound) {
				return nil, fmt.Errorf("%s %w", m.displayName(providerID), ErrProviderConnectionReq)
			}
			return nil, err
		}
		tokens[providerID] = conn.AccessToken
	}
	return tokens, nil
}

// GenerateEnvVars maps the access token of every required provider to the
// variable name the server expects. A missing connection is an error.
func (m *OAuthManager) GenerateEnvVars(ctx context.Context, userID string, providers []string) (map[string]string, error) {
	tokens, err := m.AccessTokens(ctx, userID, providers)
	if err != nil {
		return nil, err
	}
	return EnvVarsFromTokens(m.catalog, tokens), nil
}

// EnvVarsFromTokens maps provider access tokens to environment variables
func EnvVarsFromTokens(cat *catalog.Catalog, tokens map[string]string) map[string]string {
	env := make(map[string]string, len(tokens))
	for providerID, token := range tokens {
		env[cat.EnvVarFor(providerID)] = token
	}
	return env
}

// CheckRequiredConnections partitions providers into connected and missing.
// Duplicates in the input are reported once.
func (m *OAuthManager) CheckRequiredConnections(ctx context.Context, userID string, providers []string) models.RequiredConnectionsResponse {
	resp := models.RequiredConnectionsResponse{
		Connected: []string{},
		Missing:   []string{},
	}
	seen := make(map[string]bool, len(providers))

	for _, providerID := range providers {
		if seen[providerID] {
			continue
		}
		seen[providerID] = true

		if _, err := m.repo.Get(ctx, userID, providerID); err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				logger.WithFields(map[string]interface{}{
					"user_id":  userID,
					"provider": providerID,
					"error":    err.Error(),
				}).Warn("Could not read OAuth connection, treating as missing")
			}
			resp.Missing = append(resp.Missing, providerID)
			continue
		}
		resp.Connected = append(resp.Connected, providerID)
	}

	resp.AllConnected = len(resp.Missing) == 0
	return resp
}

// Providers describes the catalog providers and whether each has a client configured
func (m *OAuthManager) Providers() []models.ProviderResponse {
	out := make([]models.ProviderResponse, 0, len(m.catalog.Providers))
	for _, p := range m.catalog.Providers {
		out = append(out, models.ProviderResponse{
			Id:           p.ID,
			Name:         p.Name,
			Scopes:       p.Scopes,
			Instructions: p.Instructions,
			Configured:   m.exchanger.Configured(p.ID),
		})
	}
	return out
}

func (m *OAuthManager) displayName(providerID string) string {
	if p, err := m.catalog.Provider(providerID); err == nil {
		return p.Name
	}
	return providerID
}
