package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/imyashkale/mcpbridge/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenConnectionRepo struct{}

var errStorageDown = errors.New("storage unavailable")

func (brokenConnectionRepo) Save(context.Context, *models.MCPConnection) error { return errStorageDown }
func (brokenConnectionRepo) Get(context.Context, string, string) (*models.MCPConnection, error) {
	return nil, errStorageDown
}
func (brokenConnectionRepo) GetByUserId(context.Context, string) ([]*models.MCPConnection, error) {
	return nil, errStorageDown
}
func (brokenConnectionRepo) UpdateStatus(context.Context, string, string, models.ConnectionStatus, string, time.Time) error {
	return errStorageDown
}
func (brokenConnectionRepo) Delete(context.Context, string, string) error { return errStorageDown }

var githubConfig = models.ServerConfig{
	ID:      "github",
	Name:    "GitHub",
	Command: "npx",
	Args:    []string{"-y", "@modelcontextprotocol/server-github"},
}

func TestSaveConnection(t *testing.T) {
	m := NewConnectionManager(repository.NewMemoryMCPConnectionRepository())
	ctx := context.Background()

	conn, err := m.SaveConnection(ctx, "user-1", githubConfig)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, models.StatusDisconnected, conn.Status)
	assert.Nil(t, conn.ErrorMessage)

	_, err = m.SaveConnection(ctx, "user-1", models.ServerConfig{ID: "x", Name: "X"})
	assert.ErrorIs(t, err, ErrInvalidServerConfig)

	again, err := m.SaveConnection(ctx, "user-1", githubConfig)
	require.NoError(t, err)
	assert.Equal(t, conn.Id, again.Id)
	assert.Len(t, m.GetUserConnections(ctx, "user-1"), 1)
	assert.Empty(t, m.GetUserConnections(ctx, "user-2"))
}

func TestUpdateConnectionStatus(t *testing.T) {
	m := NewConnectionManager(repository.NewMemoryMCPConnectionRepository())
	ctx := context.Background()
	_, err := m.SaveConnection(ctx, "user-1", githubConfig)
	require.NoError(t, err)

	assert.False(t, m.UpdateConnectionStatus(ctx, "user-1", "github", models.StatusError, ""))
	assert.False(t, m.UpdateConnectionStatus(ctx, "user-1", "github", models.ConnectionStatus("paused"), ""))

	require.True(t, m.UpdateConnectionStatus(ctx, "user-1", "github", models.StatusError, "spawn failed"))
	conn := m.GetConnection(ctx, "user-1", "github")
	require.NotNil(t, conn.ErrorMessage)
	assert.Equal(t, "spawn failed", *conn.ErrorMessage)
	assert.Nil(t, conn.LastConnected)

	require.True(t, m.UpdateConnectionStatus(ctx, "user-1", "github", models.StatusConnected, ""))
	conn = m.GetConnection(ctx, "user-1", "github")
	assert.Equal(t, models.StatusConnected, conn.Status)
	assert.Nil(t, conn.ErrorMessage)
	assert.NotNil(t, conn.LastConnected)

	assert.False(t, m.UpdateConnectionStatus(ctx, "user-1", "notion", models.StatusConnected, ""))
}

func TestDeleteConnection(t *testing.T) {
	m := NewConnectionManager(repository.NewMemoryMCPConnectionRepository())
	ctx := context.Background()
	_, err := m.SaveConnection(ctx, "user-1", githubConfig)
	require.NoError(t, err)

	assert.False(t, m.DeleteConnection(ctx, "user-2", "github"))
	assert.True(t, m.DeleteConnection(ctx, "user-1", "github"))
	assert.Nil(t, m.GetConnection(ctx, "user-1", "github"))
	assert.False(t, m.DeleteConnection(ctx, "user-1", "github"))
}

func TestConnectionManagerFailsSoft(t *testing.T) {
	m := NewConnectionManager(brokenConnectionRepo{})
	ctx := context.Background()

	conn, err := m.SaveConnection(ctx, "user-1", githubConfig)
	assert.NoError(t, err)
	assert.Nil(t, conn)

	assert.Empty(t, m.GetUserConnections(ctx, "user-1"))
	assert.Nil(t, m.GetConnection(ctx, "user-1", "github"))
	assert.False(t, m.UpdateConnectionStatus(ctx, "user-1", "github", models.StatusConnected, ""))
	assert.False(t, m.DeleteConnection(ctx, "user-1", "github"))
}
