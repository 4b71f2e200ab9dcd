package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/imyashkale/mcpbridge/internal/catalog"
	"github.com/imyashkale/mcpbridge/internal/config"
	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/imyashkale/mcpbridge/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type oauthFixture struct {
	manager *OAuthManager
	relay   *PopupRelay
	repo    *repository.MemoryOAuthConnectionRepository
	cipher  *TokenCipher

	mu     sync.Mutex
	grants []string
}

func (f *oauthFixture) grantTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.grants...)
}

func newOAuthFixture(t *testing.T, opts ...OAuthOption) *oauthFixture {
	f := &oauthFixture{
		relay: NewPopupRelay(),
		repo:  repository.NewMemoryOAuthConnectionRepository(),
	}

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.grants = append(f.grants, r.PostForm.Get("grant_type"))
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"gho_first","refresh_token":"ghr_first","token_type":"bearer","scope":"repo,read:user","expires_in":28800}`))
		case "refresh_token":
			_, _ = w.Write([]byte(`{"access_token":"gho_second","token_type":"bearer","expires_in":28800}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(tokenServer.Close)

	cat := catalog.Default()
	for i := range cat.Providers {
		cat.Providers[i].TokenURL = tokenServer.URL
	}

	clients := map[string]config.OAuthClient{
		"github": {ClientID: "gh-client", ClientSecret: "gh-secret"},
		"notion": {ClientID: "notion-client", ClientSecret: "notion-secret"},
	}
	exchanger := NewTokenExchanger(cat, clients, "http://localhost:3000/oauth/callback", tokenServer.Client())

	var err error
	f.cipher, err = NewTokenCipher(testEncryptionKey)
	require.NoError(t, err)

	opts = append([]OAuthOption{WithPollInterval(5 * time.Millisecond)}, opts...)
	f.manager = NewOAuthManager(cat, exchanger, f.repo, f.cipher, f.relay, opts...)
	return f
}

func (f *oauthFixture) seed(t *testing.T, userID, providerID, access string, expiresAt *time.Time) {
	t.Helper()
	require.NoError(t, f.manager.storeTokens(context.Background(), userID, providerID, &models.OAuthTokens{
		AccessToken:  access,
		RefreshToken: "refresh-" + access,
		ExpiresAt:    expiresAt,
	}))
}

func waitFlow(t *testing.T, flow *OAuthFlow) error {
	t.Helper()
	select {
	case err := <-flow.Done():
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("oauth flow did not settle")
		return nil
	}
}

func TestOAuthFlowSucceeds(t *testing.T) {
	f := newOAuthFixture(t)
	ctx := context.Background()

	flow, err := f.manager.StartOAuth("user-1", "github", "modelcontextprotocol-server-github")
	require.NoError(t, err)
	assert.Contains(t, flow.AuthorizationURL, "client_id=gh-client")
	assert.Contains(t, flow.AuthorizationURL, "response_type=code")
	assert.Equal(t, "modelcontextprotocol-server-github", StateContext(flow.State))

	url, ok := f.relay.URL(flow.State)
	require.True(t, ok)
	assert.Equal(t, flow.AuthorizationURL, url)

	tokens, err := f.manager.HandleOAuthCallback(ctx, "github", "good-code", flow.State)
	require.NoError(t, err)
	assert.Equal(t, "gho_first", tokens.AccessToken)
	assert.Equal(t, []string{"repo", "read:user"}, tokens.Scopes)
	require.NotNil(t, tokens.ExpiresAt)

	require.NoError(t, waitFlow(t, flow))
	assert.Equal(t, 0, f.relay.OpenCount())

	stored, err := f.repo.Get(ctx, "user-1", "github")
	require.NoError(t, err)
	assert.NotEqual(t, "gho_first", stored.AccessToken)
	assert.Equal(t, "GitHub", stored.ProviderName)

	conn, err := f.manager.GetConnection(ctx, "user-1", "github")
	require.NoError(t, err)
	assert.Equal(t, "gho_first", conn.AccessToken)
	assert.Equal(t, "ghr_first", conn.RefreshToken)

	_, err = f.manager.HandleOAuthCallback(ctx, "github", "good-code", flow.State)
	assert.ErrorIs(t, err, ErrInvalidOAuthState)
}

func TestOAuthCallbackRejectsMismatchedState(t *testing.T) {
	f := newOAuthFixture(t)
	ctx := context.Background()

	flow, err := f.manager.StartOAuth("user-1", "github", "")
	require.NoError(t, err)

	_, err = f.manager.HandleOAuthCallback(ctx, "github", "good-code", "forged-state")
	assert.ErrorIs(t, err, ErrInvalidOAuthState)

	_, err = f.manager.HandleOAuthCallback(ctx, "notion", "good-code", flow.State)
	assert.ErrorIs(t, err, ErrInvalidOAuthState)

	assert.Empty(t, f.grantTypes())
	_, err = f.repo.Get(ctx, "user-1", "github")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.manager.HandleOAuthCallback(ctx, "github", "good-code", flow.State)
	require.NoError(t, err)
	require.NoError(t, waitFlow(t, flow))
}

func TestOAuthFlowCancelledWhenPopupClosed(t *testing.T) {
	f := newOAuthFixture(t)

	flow, err := f.manager.StartOAuth("user-1", "github", "")
	require.NoError(t, err)

	assert.ErrorIs(t, f.manager.ReportPopupClosed("someone-else", flow.State), ErrInvalidOAuthState)
	require.NoError(t, f.manager.ReportPopupClosed("user-1", flow.State))

	assert.ErrorIs(t, waitFlow(t, flow), ErrOAuthCancelled)
	assert.Eventually(t, func() bool { return f.manager.PendingFlows() == 0 }, time.Second, 5*time.Millisecond)
}

func TestOAuthFlowTimesOut(t *testing.T) {
	f := newOAuthFixture(t, WithFlowTimeout(30*time.Millisecond))

	flow, err := f.manager.StartOAuth("user-1", "github", "")
	require.NoError(t, err)

	assert.ErrorIs(t, waitFlow(t, flow), ErrOAuthTimeout)
	assert.Equal(t, 0, f.relay.OpenCount())
}

func TestOAuthFlowFailures(t *testing.T) {
	t.Run("provider denied access", func(t *testing.T) {
		f := newOAuthFixture(t)
		flow, err := f.manager.StartOAuth("user-1", "github", "")
		require.NoError(t, err)

		require.NoError(t, f.manager.AbortOAuth("github", flow.State, "access_denied"))
		assert.ErrorIs(t, waitFlow(t, flow), ErrOAuthAccessDenied)
	})

	t.Run("code exchange rejected", func(t *testing.T) {
		f := newOAuthFixture(t)
		flow, err := f.manager.StartOAuth("user-1", "github", "")
		require.NoError(t, err)

		_, err = f.manager.HandleOAuthCallback(context.Background(), "github", "bad-code", flow.State)
		assert.ErrorIs(t, err, ErrTokenExchangeFailed)
		assert.ErrorIs(t, waitFlow(t, flow), ErrTokenExchangeFailed)
	})

	t.Run("client not configured", func(t *testing.T) {
		f := newOAuthFixture(t)
		_, err := f.manager.StartOAuth("user-1", "linear", "")
		assert.ErrorIs(t, err, ErrProviderNotConfigured)
		assert.Equal(t, 0, f.relay.OpenCount())
	})

	t.Run("wait cancelled by caller", func(t *testing.T) {
		f := newOAuthFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := f.manager.InitiateOAuth(ctx, "user-1", "github", "")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestGenerateEnvVars(t *testing.T) {
	f := newOAuthFixture(t)
	ctx := context.Background()
	f.seed(t, "user-1", "github", "gho_env", nil)
	f.seed(t, "user-1", "notion", "secret_env", nil)

	env, err := f.manager.GenerateEnvVars(ctx, "user-1", []string{"github", "notion"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"GITHUB_TOKEN":   "gho_env",
		"NOTION_API_KEY": "secret_env",
	}, env)

	_, err = f.manager.GenerateEnvVars(ctx, "user-2", []string{"github"})
	require.ErrorIs(t, err, ErrProviderConnectionReq)
	assert.EqualError(t, err, "GitHub connection required but not found")

	unknown := EnvVarsFromTokens(catalog.Default(), map[string]string{"jira-cloud": "t"})
	assert.Equal(t, map[string]string{"JIRA_CLOUD_TOKEN": "t"}, unknown)
}

func TestCheckRequiredConnections(t *testing.T) {
	f := newOAuthFixture(t)
	f.seed(t, "user-1", "github", "gho", nil)

	resp := f.manager.CheckRequiredConnections(context.Background(), "user-1",
		[]string{"github", "notion", "github", "linear"})

	assert.Equal(t, []string{"github"}, resp.Connected)
	assert.Equal(t, []string{"notion", "linear"}, resp.Missing)
	assert.False(t, resp.AllConnected)

	empty := f.manager.CheckRequiredConnections(context.Background(), "user-1", nil)
	assert.Empty(t, empty.Connected)
	assert.Empty(t, empty.Missing)
	assert.True(t, empty.AllConnected)
}

func TestRefreshTokensIfNeeded(t *testing.T) {
	f := newOAuthFixture(t)
	ctx := context.Background()

	refreshed, err := f.manager.RefreshTokensIfNeeded(ctx, "user-1", "github")
	require.NoError(t, err)
	assert.False(t, refreshed, "no connection")

	later := time.Now().Add(3 * time.Hour)
	f.seed(t, "user-1", "github", "gho_fresh", &later)
	refreshed, err = f.manager.RefreshTokensIfNeeded(ctx, "user-1", "github")
	require.NoError(t, err)
	assert.False(t, refreshed, "expiry outside the refresh window")

	soon := time.Now().Add(10 * time.Minute)
	f.seed(t, "user-1", "github", "gho_stale", &soon)
	refreshed, err = f.manager.RefreshTokensIfNeeded(ctx, "user-1", "github")
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, []string{"refresh_token"}, f.grantTypes())

	conn, err := f.manager.GetConnection(ctx, "user-1", "github")
	require.NoError(t, err)
	assert.Equal(t, "gho_second", conn.AccessToken)
	assert.Equal(t, "refresh-gho_stale", conn.RefreshToken)
}

func TestDisconnect(t *testing.T) {
	f := newOAuthFixture(t)
	ctx := context.Background()
	f.seed(t, "user-1", "github", "gho", nil)

	require.NoError(t, f.manager.Disconnect(ctx, "user-1", "github"))
	assert.ErrorIs(t, f.manager.Disconnect(ctx, "user-1", "github"), ErrConnectionNotFound)

	conns, err := f.manager.GetConnections(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestProvidersReportConfiguration(t *testing.T) {
	f := newOAuthFixture(t)

	configured := make(map[string]bool)
	for _, p := range f.manager.Providers() {
		configured[p.Id] = p.Configured
	}
	assert.Equal(t, map[string]bool{"github": true, "notion": true, "linear": false}, configured)
}

func TestOAuthCallbackResolvesProviderFromState(t *testing.T) {
	f := newOAuthFixture(t)
	ctx := context.Background()

	flow, err := f.manager.StartOAuth("user-1", "github", "")
	require.NoError(t, err)

	tokens, err := f.manager.HandleOAuthCallback(ctx, "", "good-code", flow.State)
	require.NoError(t, err)
	assert.Equal(t, "gho_first", tokens.AccessToken)
	require.NoError(t, waitFlow(t, flow))

	stored, err := f.manager.GetConnection(ctx, "user-1", "github")
	require.NoError(t, err)
	assert.Equal(t, "gho_first", stored.AccessToken)

	denied, err := f.manager.StartOAuth("user-1", "notion", "")
	require.NoError(t, err)
	require.NoError(t, f.manager.AbortOAuth("", denied.State, "access_denied"))
	assert.ErrorIs(t, waitFlow(t, denied), ErrOAuthAccessDenied)
}
