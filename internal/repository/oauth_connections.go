package repository

import (
	"context"

	"github.com/imyashkale/mcpbridge/internal/database"
	"github.com/imyashkale/mcpbridge/internal/models"
)

// OAuthConnectionRepository defines the interface for stored OAuth grants.
// There is at most one row per (user, provider).
type OAuthConnectionRepository interface {
	Upsert(ctx context.Context, conn *models.OAuthConnection) error
	Get(ctx context.Context, userId, providerId string) (*models.OAuthConnection, error)
	GetByUserId(ctx context.Context, userId string) ([]*models.OAuthConnection, error)
	Delete(ctx context.Context, userId, providerId string) error
}

// dynamoOAuthConnectionRepository implements OAuthConnectionRepository using DynamoDB
type dynamoOAuthConnectionRepository struct {
	db *database.OAuthConnectionsDB
}

// NewOAuthConnectionRepository creates a new DynamoDB-backed OAuth connection repository
func NewOAuthConnectionRepository(db *database.OAuthConnectionsDB) OAuthConnectionRepository {
	return &dynamoOAuthConnectionRepository{
		db: db,
	}
}

func (r *dynamoOAuthConnectionRepository) Upsert(ctx context.Context, conn *models.OAuthConnection) error {
	return r.db.UpsertConnection(ctx, conn)
}

func (r *dynamoOAuthConnectionRepository) Get(ctx context.Context, userId, providerId string) (*models.OAuthConnection, error) {
	return r.db.GetConnection(ctx, userId, providerId)
}

func (r *dynamoOAuthConnectionRepository) GetByUserId(ctx context.Context, userId string) ([]*models.OAuthConnection, error) {
	return r.db.GetConnectionsByUserId(ctx, userId)
}

func (r *dynamoOAuthConnectionRepository) Delete(ctx context.Context, userId, providerId string) error {
	return r.db.DeleteConnection(ctx, userId, providerId)
}
