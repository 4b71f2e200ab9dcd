package repository

import (
	"context"
	"time"

	"github.com/imyashkale/mcpbridge/internal/database"
	"github.com/imyashkale/mcpbridge/internal/models"
)

// MCPConnectionRepository defines the interface for a user's server connections
type MCPConnectionRepository interface {
	// Save upserts on (user, server), keeping Id and CreatedAt of an existing row
	Save(ctx context.Context, conn *models.MCPConnection) error
	Get(ctx context.Context, userId, serverId string) (*models.MCPConnection, error)
	GetByUserId(ctx context.Context, userId string) ([]*models.MCPConnection, error)
	UpdateStatus(ctx context.Context, userId, serverId string, status models.ConnectionStatus, errorMessage string, at time.Time) error
	Delete(ctx context.Context, userId, serverId string) error
}

// dynamoMCPConnectionRepository implements MCPConnectionRepository using DynamoDB
type dynamoMCPConnectionRepository struct {
	db *database.MCPConnectionsDB
}

// NewMCPConnectionRepository creates a new DynamoDB-backed connection repository
func NewMCPConnectionRepository(db *database.MCPConnectionsDB) MCPConnectionRepository {
	return &dynamoMCPConnectionRepository{
		db: db,
	}
}

func (r *dynamoMCPConnectionRepository) Save(ctx context.Context, conn *models.MCPConnection) error {
	return r.db.SaveConnection(ctx, conn)
}

func (r *dynamoMCPConnectionRepository) Get(ctx context.Context, userId, serverId string) (*models.MCPConnection, error) {
	return r.db.GetConnection(ctx, userId, serverId)
}

func (r *dynamoMCPConnectionRepository) GetByUserId(ctx context.Context, userId string) ([]*models.MCPConnection, error) {
	return r.db.GetConnectionsByUserId(ctx, userId)
}

func (r *dynamoMCPConnectionRepository) UpdateStatus(ctx context.Context, userId, serverId string, status models.ConnectionStatus, errorMessage string, at time.Time) error {
	return r.db.UpdateStatus(ctx, userId, serverId, status, errorMessage, at)
}

func (r *dynamoMCPConnectionRepository) Delete(ctx context.Context, userId, serverId string) error {
	return r.db.DeleteConnection(ctx, userId, serverId)
}
