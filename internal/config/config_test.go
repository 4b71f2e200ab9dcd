package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestNewReadsProviderCredentials(t *testing.T) {
	t.Setenv("TOKEN_ENCRYPTION_KEY", testKey)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GITHUB_CLIENT_ID", "gh-id")
	t.Setenv("GITHUB_CLIENT_SECRET", "gh-secret")
	t.Setenv("APP_BASE_URL", "https://prompt.example/")
	t.Setenv("PORT", "8080")

	cfg := New("github", "notion")

	gh, ok := cfg.OAuthClient("github")
	require.True(t, ok)
	assert.Equal(t, "gh-id", gh.ClientID)
	assert.Equal(t, "gh-secret", gh.ClientSecret)

	_, ok = cfg.OAuthClient("notion")
	assert.False(t, ok, "notion has no client id")

	assert.Equal(t, "https://prompt.example/auth/oauth-callback", cfg.OAuthRedirectURL())
	assert.Equal(t, "http://localhost:8080/api/v1/mcp", cfg.BridgeRPCURL)
	assert.Equal(t, StorageDynamoDB, cfg.StorageBackend)
	assert.Equal(t, 2, cfg.UsageWorkers)
}

func TestValidatePanics(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing encryption key",
			env:  map[string]string{"JWT_SECRET": "s"},
		},
		{
			name: "short encryption key",
			env:  map[string]string{"JWT_SECRET": "s", "TOKEN_ENCRYPTION_KEY": "short"},
		},
		{
			name: "verify mode without secret",
			env:  map[string]string{"TOKEN_ENCRYPTION_KEY": testKey},
		},
		{
			name: "unknown storage backend",
			env:  map[string]string{"JWT_SECRET": "s", "TOKEN_ENCRYPTION_KEY": testKey, "STORAGE_BACKEND": "postgres"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TOKEN_ENCRYPTION_KEY", "")
			t.Setenv("JWT_SECRET", "")
			t.Setenv("STORAGE_BACKEND", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Panics(t, func() { New() })
		})
	}
}

func TestUnverifiedModeDoesNotNeedSecret(t *testing.T) {
	t.Setenv("TOKEN_ENCRYPTION_KEY", testKey)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("AUTH_MODE", AuthModeUnverified)
	t.Setenv("STORAGE_BACKEND", StorageMemory)

	cfg := New()
	assert.True(t, cfg.UsesMemoryStorage())
}
