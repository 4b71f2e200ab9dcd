package repository

import (
	"context"
	"time"

	"github.com/imyashkale/mcpbridge/internal/database"
	"github.com/imyashkale/mcpbridge/internal/models"
)

// CloudInstanceRepository defines the interface for cloud bridge instances
type CloudInstanceRepository interface {
	Create(ctx context.Context, inst *models.CloudBridgeInstance) error
	Get(ctx context.Context, id string) (*models.CloudBridgeInstance, error)
	GetByUserId(ctx context.Context, userId string) ([]*models.CloudBridgeInstance, error)
	// TransitionStatus fails with ErrConflict when the stored status is no longer from
	TransitionStatus(ctx context.Context, id string, from, to models.InstanceStatus, endpoint, errorMessage string, at time.Time) error
	IncrementUsage(ctx context.Context, id string, at time.Time) error
}

// dynamoCloudInstanceRepository implements CloudInstanceRepository using DynamoDB
type dynamoCloudInstanceRepository struct {
	db *database.CloudInstancesDB
}

// NewCloudInstanceRepository creates a new DynamoDB-backed instance repository
func NewCloudInstanceRepository(db *database.CloudInstancesDB) CloudInstanceRepository {
	return &dynamoCloudInstanceRepository{
		db: db,
	}
}

func (r *dynamoCloudInstanceRepository) Create(ctx context.Context, inst *models.CloudBridgeInstance) error {
	return r.db.CreateInstance(ctx, inst)
}

func (r *dynamoCloudInstanceRepository) Get(ctx context.Context, id string) (*models.CloudBridgeInstance, error) {
	return r.db.GetInstance(ctx, id)
}

func (r *dynamoCloudInstanceRepository) GetByUserId(ctx context.Context, userId string) ([]*models.CloudBridgeInstance, error) {
	return r.db.GetInstancesByUserId(ctx, userId)
}

func (r *dynamoCloudInstanceRepository) TransitionStatus(ctx context.Context, id string, from, to models.InstanceStatus, endpoint, errorMessage string, at time.Time) error {
	return r.db.TransitionStatus(ctx, id, from, to, endpoint, errorMessage, at)
}

func (r *dynamoCloudInstanceRepository) IncrementUsage(ctx context.Context, id string, at time.Time) error {
	return r.db.IncrementUsage(ctx, id, at)
}
