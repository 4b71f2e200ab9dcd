package repository

import (
	"context"
	"testing"
	"time"

	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryOAuthConnectionUpsertKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOAuthConnectionRepository()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, &models.OAuthConnection{
		Id: "conn-1", UserId: "u1", ProviderId: "github", AccessToken: "a", CreatedAt: first, UpdatedAt: first,
	}))
	require.NoError(t, repo.Upsert(ctx, &models.OAuthConnection{
		Id: "conn-2", UserId: "u1", ProviderId: "github", AccessToken: "b", CreatedAt: first.Add(time.Hour), UpdatedAt: first.Add(time.Hour),
	}))

	conns, err := repo.GetByUserId(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "conn-1", conns[0].Id)
	assert.Equal(t, first, conns[0].CreatedAt)
	assert.Equal(t, "b", conns[0].AccessToken)

	_, err = repo.Get(ctx, "u2", "github")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Delete(ctx, "u1", "github"))
	assert.ErrorIs(t, repo.Delete(ctx, "u1", "github"), ErrNotFound)
}

func TestMemoryMCPConnectionStatusTransitions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMCPConnectionRepository()
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, &models.MCPConnection{
		Id: "c1", UserId: "u1", ServerId: "github", ServerName: "GitHub", Command: "npx",
		Status: models.StatusDisconnected, CreatedAt: now, UpdatedAt: now,
	}))

	require.NoError(t, repo.UpdateStatus(ctx, "u1", "github", models.StatusError, "spawn failed", now))
	conn, err := repo.Get(ctx, "u1", "github")
	require.NoError(t, err)
	require.NotNil(t, conn.ErrorMessage)
	assert.Equal(t, "spawn failed", *conn.ErrorMessage)
	assert.Nil(t, conn.LastConnected)

	later := now.Add(time.Minute)
	require.NoError(t, repo.UpdateStatus(ctx, "u1", "github", models.StatusConnected, "", later))
	conn, err = repo.Get(ctx, "u1", "github")
	require.NoError(t, err)
	assert.Nil(t, conn.ErrorMessage)
	require.NotNil(t, conn.LastConnected)
	assert.Equal(t, later, *conn.LastConnected)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, "u1", "missing", models.StatusConnected, "", later), ErrNotFound)
}

func TestMemoryMCPConnectionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMCPConnectionRepository()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.Save(ctx, &models.MCPConnection{
			Id: id, UserId: "u1", ServerId: id, Command: "npx", CreatedAt: at, UpdatedAt: at,
		}))
	}
	require.NoError(t, repo.Save(ctx, &models.MCPConnection{Id: "x", UserId: "u2", ServerId: "x", Command: "npx"}))

	conns, err := repo.GetByUserId(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, conns, 3)
	assert.Equal(t, "c", conns[0].ServerId)
	assert.Equal(t, "a", conns[2].ServerId)
}

func TestMemoryCloudInstanceConditionalTransition(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCloudInstanceRepository()
	now := time.Now()

	inst := &models.CloudBridgeInstance{Id: "i1", UserId: "u1", Status: models.InstanceStarting, CreatedAt: now}
	require.NoError(t, repo.Create(ctx, inst))
	assert.ErrorIs(t, repo.Create(ctx, inst), ErrConflict)

	require.NoError(t, repo.TransitionStatus(ctx, "i1", models.InstanceStarting, models.InstanceRunning, "https://i1.example", "", now))
	assert.ErrorIs(t, repo.TransitionStatus(ctx, "i1", models.InstanceStarting, models.InstanceError, "", "late", now), ErrConflict)

	require.NoError(t, repo.IncrementUsage(ctx, "i1", now))
	require.NoError(t, repo.IncrementUsage(ctx, "i1", now))

	got, err := repo.Get(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceRunning, got.Status)
	assert.Equal(t, "https://i1.example", got.EndpointUrl)
	assert.EqualValues(t, 2, got.UsageStats.RequestsCount)

	require.NoError(t, repo.TransitionStatus(ctx, "i1", models.InstanceRunning, models.InstanceStopping, "", "", now))
	got, err = repo.Get(ctx, "i1")
	require.NoError(t, err)
	assert.Empty(t, got.EndpointUrl)

	assert.ErrorIs(t, repo.IncrementUsage(ctx, "nope", now), ErrNotFound)
}
