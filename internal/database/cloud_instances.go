package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
)

// cloudInstanceItem is the stored shape of a cloud bridge instance, keyed by Id
type cloudInstanceItem struct {
	Id            string            `dynamodbav:"Id"`
	UserId        string            `dynamodbav:"UserId"`
	ServerId      string            `dynamodbav:"ServerId"`
	ServerName    string            `dynamodbav:"ServerName"`
	ServerInfo    models.ServerInfo `dynamodbav:"ServerInfo"`
	Status        string            `dynamodbav:"Status"`
	EndpointUrl   string            `dynamodbav:"EndpointUrl,omitempty"`
	ImageUri      string            `dynamodbav:"ImageUri,omitempty"`
	RequestsCount int64             `dynamodbav:"RequestsCount"`
	LastRequestAt int64             `dynamodbav:"LastRequestAt,omitempty"`
	ErrorMessage  string            `dynamodbav:"ErrorMessage,omitempty"`
	CreatedAt     int64             `dynamodbav:"CreatedAt"`
	UpdatedAt     int64             `dynamodbav:"UpdatedAt"`
}

func (it *cloudInstanceItem) toModel() *models.CloudBridgeInstance {
	inst := &models.CloudBridgeInstance{
		Id:           it.Id,
		UserId:       it.UserId,
		ServerId:     it.ServerId,
		ServerName:   it.ServerName,
		ServerInfo:   it.ServerInfo,
		Status:       models.InstanceStatus(it.Status),
		EndpointUrl:  it.EndpointUrl,
		ImageUri:     it.ImageUri,
		ErrorMessage: it.ErrorMessage,
		UsageStats:   models.UsageStats{RequestsCount: it.RequestsCount},
		CreatedAt:    time.Unix(it.CreatedAt, 0),
		UpdatedAt:    time.Unix(it.UpdatedAt, 0),
	}
	if it.LastRequestAt > 0 {
		last := time.Unix(it.LastRequestAt, 0)
		inst.UsageStats.LastRequest = &last
	}
	return inst
}

// CloudInstancesDB handles cloud bridge instance table operations
type CloudInstancesDB struct {
	client    *Client
	tableName string
}

// NewCloudInstancesDB creates a new CloudInstancesDB instance
func NewCloudInstancesDB(client *Client, tableName string) *CloudInstancesDB {
	return &CloudInstancesDB{
		client:    client,
		tableName: tableName,
	}
}

func instanceKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"Id": &types.AttributeValueMemberS{Value: id},
	}
}

// CreateInstance stores a new instance row; an existing Id is rejected
func (db *CloudInstancesDB) CreateInstance(ctx context.Context, inst *models.CloudBridgeInstance) error {
	item := cloudInstanceItem{
		Id:            inst.Id,
		UserId:        inst.UserId,
		ServerId:      inst.ServerId,
		ServerName:    inst.ServerName,
		ServerInfo:    inst.ServerInfo,
		Status:        string(inst.Status),
		EndpointUrl:   inst.EndpointUrl,
		ImageUri:      inst.ImageUri,
		RequestsCount: inst.UsageStats.RequestsCount,
		ErrorMessage:  inst.ErrorMessage,
		CreatedAt:     inst.CreatedAt.Unix(),
		UpdatedAt:     inst.UpdatedAt.Unix(),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal cloud instance: %w", err)
	}

	_, err = db.client.DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(db.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(Id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConflict
		}
		logger.WithFields(map[string]interface{}{
			"instance_id": inst.Id,
			"user_id":     inst.UserId,
			"error":       err.Error(),
		}).Error("Failed to create cloud instance in DynamoDB")
		return fmt.Errorf("failed to create cloud instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by Id
func (db *CloudInstancesDB) GetInstance(ctx context.Context, id string) (*models.CloudBridgeInstance, error) {
	result, err := db.client.DynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(db.tableName),
		Key:       instanceKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get cloud instance: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var item cloudInstanceItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cloud instance: %w", err)
	}
	return item.toModel(), nil
}

// GetInstancesByUserId lists a user's instances, newest first
func (db *CloudInstancesDB) GetInstancesByUserId(ctx context.Context, userId string) ([]*models.CloudBridgeInstance, error) {
	result, err := db.client.DynamoDB.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(db.tableName),
		FilterExpression: aws.String("UserId = :userId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userId": &types.AttributeValueMemberS{Value: userId},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan cloud instances by user_id: %w", err)
	}

	instances := make([]*models.CloudBridgeInstance, 0, len(result.Items))
	for _, raw := range result.Items {
		var item cloudInstanceItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cloud instance: %w", err)
		}
		instances = append(instances, item.toModel())
	}

	sort.SliceStable(instances, func(i, j int) bool {
		return instances[i].CreatedAt.After(instances[j].CreatedAt)
	})
	return instances, nil
}

// TransitionStatus moves an instance from one status to another. The write
// only applies when the stored status still equals from; otherwise ErrConflict.
// An empty endpoint removes the stored endpoint.
func (db *CloudInstancesDB) TransitionStatus(ctx context.Context, id string, from, to models.InstanceStatus, endpoint, errorMessage string, at time.Time) error {
	values := map[string]types.AttributeValue{
		":from":      &types.AttributeValueMemberS{Value: string(from)},
		":to":        &types.AttributeValueMemberS{Value: string(to)},
		":updatedAt": &types.AttributeValueMemberN{Value: unixString(at)},
	}
	set := "SET #status = :to, UpdatedAt = :updatedAt"
	var remove []string

	if endpoint != "" {
		set += ", EndpointUrl = :endpoint"
		values[":endpoint"] = &types.AttributeValueMemberS{Value: endpoint}
	} else {
		remove = append(remove, "EndpointUrl")
	}
	if errorMessage != "" {
		set += ", ErrorMessage = :errorMessage"
		values[":errorMessage"] = &types.AttributeValueMemberS{Value: errorMessage}
	}

	expr := set
	if len(remove) > 0 {
		expr += " REMOVE " + remove[0]
	}

	_, err := db.client.DynamoDB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(db.tableName),
		Key:                       instanceKey(id),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(Id) AND #status = :from"),
		ExpressionAttributeNames:  map[string]string{"#status": "Status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConflict
		}
		return fmt.Errorf("failed to update cloud instance status: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"instance_id": id,
		"from":        from,
		"to":          to,
	}).Info("Cloud instance status updated")
	return nil
}

// IncrementUsage atomically adds one request to the instance counters
func (db *CloudInstancesDB) IncrementUsage(ctx context.Context, id string, at time.Time) error {
	_, err := db.client.DynamoDB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(db.tableName),
		Key:                 instanceKey(id),
		UpdateExpression:    aws.String("ADD RequestsCount :one SET LastRequestAt = :at"),
		ConditionExpression: aws.String("attribute_exists(Id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":at":  &types.AttributeValueMemberN{Value: unixString(at)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to increment cloud instance usage: %w", err)
	}
	return nil
}
