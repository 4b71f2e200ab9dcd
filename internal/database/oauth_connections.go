package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
)

// oauthConnectionItem is the stored shape of an OAuth connection.
// The table is keyed by UserId (hash) and ProviderId (range).
type oauthConnectionItem struct {
	Id           string                 `dynamodbav:"Id"`
	UserId       string                 `dynamodbav:"UserId"`
	ProviderId   string                 `dynamodbav:"ProviderId"`
	ProviderName string                 `dynamodbav:"ProviderName"`
	AccessToken  string                 `dynamodbav:"AccessToken"`
	RefreshToken string                 `dynamodbav:"RefreshToken,omitempty"`
	ExpiresAt    int64                  `dynamodbav:"ExpiresAt,omitempty"`
	Scopes       []string               `dynamodbav:"Scopes,omitempty"`
	Metadata     map[string]interface{} `dynamodbav:"Metadata,omitempty"`
	CreatedAt    int64                  `dynamodbav:"CreatedAt"`
	UpdatedAt    int64                  `dynamodbav:"UpdatedAt"`
}

func (it *oauthConnectionItem) toModel() *models.OAuthConnection {
	conn := &models.OAuthConnection{
		Id:           it.Id,
		UserId:       it.UserId,
		ProviderId:   it.ProviderId,
		ProviderName: it.ProviderName,
		AccessToken:  it.AccessToken,
		RefreshToken: it.RefreshToken,
		Scopes:       it.Scopes,
		Metadata:     it.Metadata,
		CreatedAt:    time.Unix(it.CreatedAt, 0),
		UpdatedAt:    time.Unix(it.UpdatedAt, 0),
	}
	if it.ExpiresAt > 0 {
		exp := time.Unix(it.ExpiresAt, 0)
		conn.ExpiresAt = &exp
	}
	return conn
}

// OAuthConnectionsDB handles OAuth connection table operations
type OAuthConnectionsDB struct {
	client    *Client
	tableName string
}

// NewOAuthConnectionsDB creates a new OAuthConnectionsDB instance
func NewOAuthConnectionsDB(client *Client, tableName string) *OAuthConnectionsDB {
	return &OAuthConnectionsDB{
		client:    client,
		tableName: tableName,
	}
}

func oauthKey(userId, providerId string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"UserId":     &types.AttributeValueMemberS{Value: userId},
		"ProviderId": &types.AttributeValueMemberS{Value: providerId},
	}
}

// UpsertConnection writes the connection for (user, provider), keeping the
// original Id and CreatedAt when a row already exists
func (db *OAuthConnectionsDB) UpsertConnection(ctx context.Context, conn *models.OAuthConnection) error {
	values := map[string]interface{}{
		":id":           conn.Id,
		":providerName": conn.ProviderName,
		":accessToken":  conn.AccessToken,
		":scopes":       conn.Scopes,
		":metadata":     conn.Metadata,
		":createdAt":    conn.CreatedAt.Unix(),
		":updatedAt":    conn.UpdatedAt.Unix(),
	}
	setExpr := "SET Id = if_not_exists(Id, :id), ProviderName = :providerName, AccessToken = :accessToken, " +
		"Scopes = :scopes, Metadata = :metadata, CreatedAt = if_not_exists(CreatedAt, :createdAt), UpdatedAt = :updatedAt"
	var removes []string

	if conn.RefreshToken != "" {
		setExpr += ", RefreshToken = :refreshToken"
		values[":refreshToken"] = conn.RefreshToken
	} else {
		removes = append(removes, "RefreshToken")
	}
	if conn.ExpiresAt != nil {
		setExpr += ", ExpiresAt = :expiresAt"
		values[":expiresAt"] = conn.ExpiresAt.Unix()
	} else {
		removes = append(removes, "ExpiresAt")
	}

	expr := setExpr
	if len(removes) > 0 {
		expr += " REMOVE " + strings.Join(removes, ", ")
	}

	av, err := attributevalue.MarshalMap(values)
	if err != nil {
		return fmt.Errorf("failed to marshal oauth connection: %w", err)
	}

	_, err = db.client.DynamoDB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(db.tableName),
		Key:                       oauthKey(conn.UserId, conn.ProviderId),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: av,
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"user_id":  conn.UserId,
			"provider": conn.ProviderId,
			"error":    err.Error(),
		}).Error("Failed to upsert OAuth connection in DynamoDB")
		return fmt.Errorf("failed to upsert oauth connection: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"user_id":  conn.UserId,
		"provider": conn.ProviderId,
	}).Debug("OAuth connection stored in DynamoDB")
	return nil
}

// GetConnection retrieves the connection for (user, provider)
func (db *OAuthConnectionsDB) GetConnection(ctx context.Context, userId, providerId string) (*models.OAuthConnection, error) {
	result, err := db.client.DynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(db.tableName),
		Key:       oauthKey(userId, providerId),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth connection: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var item oauthConnectionItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal oauth connection: %w", err)
	}
	return item.toModel(), nil
}

// GetConnectionsByUserId lists every provider connection of a user
func (db *OAuthConnectionsDB) GetConnectionsByUserId(ctx context.Context, userId string) ([]*models.OAuthConnection, error) {
	result, err := db.client.DynamoDB.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(db.tableName),
		KeyConditionExpression: aws.String("UserId = :userId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userId": &types.AttributeValueMemberS{Value: userId},
		},
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"user_id": userId,
			"error":   err.Error(),
		}).Error("Failed to query OAuth connections from DynamoDB")
		return nil, fmt.Errorf("failed to query oauth connections: %w", err)
	}

	conns := make([]*models.OAuthConnection, 0, len(result.Items))
	for _, raw := range result.Items {
		var item oauthConnectionItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal oauth connection: %w", err)
		}
		conns = append(conns, item.toModel())
	}
	return conns, nil
}

// DeleteConnection removes the connection for (user, provider)
func (db *OAuthConnectionsDB) DeleteConnection(ctx context.Context, userId, providerId string) error {
	_, err := db.client.DynamoDB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(db.tableName),
		Key:                 oauthKey(userId, providerId),
		ConditionExpression: aws.String("attribute_exists(UserId)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete oauth connection: %w", err)
	}
	return nil
}

func unixString(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
