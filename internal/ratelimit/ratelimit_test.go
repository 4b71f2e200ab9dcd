package ratelimit

import (
	"testing"
	"time"

	"github.com/imyashkale/mcpbridge/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(now *time.Time) *Limiter {
	l := New(map[string]catalog.RateLimit{
		"test": {Requests: 5, Window: time.Hour},
		"chat": {Requests: 50, Window: time.Hour},
	})
	l.now = func() time.Time { return *now }
	return l
}

func TestCheckAndConsume(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(&now)

	for i := 0; i < 5; i++ {
		res := l.CheckAndConsume("test", "user:1")
		require.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 5, res.Limit)
		assert.Equal(t, 4-i, res.Remaining)
	}

	denied := l.CheckAndConsume("test", "user:1")
	assert.False(t, denied.Allowed)
	assert.Equal(t, 0, denied.Remaining)
	assert.Equal(t, 12*time.Minute, denied.RetryAfter)
	assert.Equal(t, now.Add(12*time.Minute), denied.ResetTime)

	other := l.CheckAndConsume("test", "user:2")
	assert.True(t, other.Allowed, "identifiers have separate buckets")

	chat := l.CheckAndConsume("chat", "user:1")
	assert.True(t, chat.Allowed, "endpoints have separate buckets")

	now = now.Add(13 * time.Minute)
	assert.True(t, l.CheckAndConsume("test", "user:1").Allowed)
}

func TestCheckAndConsumeFailsOpen(t *testing.T) {
	now := time.Now()
	l := newTestLimiter(&now)

	for i := 0; i < 100; i++ {
		assert.True(t, l.CheckAndConsume("unconfigured", "ip:unknown").Allowed)
	}
}

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name                          string
		user, forwarded, real, remote string
		want                          string
	}{
		{"authenticated user", "auth0|42", "1.1.1.1", "", "", "user:auth0|42"},
		{"first forwarded address", "", "203.0.113.9, 10.0.0.1", "198.51.100.2", "", "ip:203.0.113.9"},
		{"real ip header", "", "", "198.51.100.2", "10.0.0.1", "ip:198.51.100.2"},
		{"remote address", "", "", "", "10.0.0.1", "ip:10.0.0.1"},
		{"nothing known", "", "", "", "", "ip:unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Identifier(tt.user, tt.forwarded, tt.real, tt.remote))
		})
	}
}
