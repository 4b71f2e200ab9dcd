package services

import (
	"context"
	"testing"

	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/imyashkale/mcpbridge/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnector(t *testing.T, refuse ...string) (*ServerConnector, *ToolCallClient, *ConnectionManager) {
	tools, _ := newTestToolCallClient(t, refuse...)
	conns := NewConnectionManager(repository.NewMemoryMCPConnectionRepository())
	return NewServerConnector(conns, tools), tools, conns
}

func TestConnectorConnect(t *testing.T) {
	s, tools, _ := newTestConnector(t)

	conn, err := s.Connect(context.Background(), "user-1", githubConfig)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConnected, conn.Status)
	assert.NotNil(t, conn.LastConnected)
	assert.True(t, tools.IsServerConnected("user-1", "github"))
}

func TestConnectorConnectFailure(t *testing.T) {
	s, _, _ := newTestConnector(t, "github")

	conn, err := s.Connect(context.Background(), "user-1", githubConfig)
	require.ErrorIs(t, err, ErrConnectionFailed)
	assert.EqualError(t, err, "spawn npx ENOENT")
	require.NotNil(t, conn)
	assert.Equal(t, models.StatusError, conn.Status)
	require.NotNil(t, conn.ErrorMessage)
	assert.Equal(t, "Failed to establish connection", *conn.ErrorMessage)
}

func TestConnectorDisconnectAndRemove(t *testing.T) {
	s, tools, conns := newTestConnector(t)
	ctx := context.Background()

	_, err := s.Connect(ctx, "user-1", githubConfig)
	require.NoError(t, err)

	conn, err := s.Disconnect(ctx, "user-1", "github")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisconnected, conn.Status)
	assert.False(t, tools.IsServerConnected("user-1", "github"))

	conn, err = s.Reconnect(ctx, "user-1", "github")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConnected, conn.Status)

	require.NoError(t, s.Remove(ctx, "user-1", "github"))
	assert.False(t, tools.IsServerConnected("user-1", "github"))
	assert.Nil(t, conns.GetConnection(ctx, "user-1", "github"))

	assert.ErrorIs(t, s.Remove(ctx, "user-1", "github"), ErrUnknownConnection)
	_, err = s.Disconnect(ctx, "user-1", "github")
	assert.ErrorIs(t, err, ErrUnknownConnection)
}
