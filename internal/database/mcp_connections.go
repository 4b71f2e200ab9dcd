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

// mcpConnectionItem is the stored shape of a server connection.
// The table is keyed by UserId (hash) and ServerId (range).
type mcpConnectionItem struct {
	Id            string            `dynamodbav:"Id"`
	UserId        string            `dynamodbav:"UserId"`
	ServerId      string            `dynamodbav:"ServerId"`
	ServerName    string            `dynamodbav:"ServerName"`
	Command       string            `dynamodbav:"Command"`
	Args          []string          `dynamodbav:"Args,omitempty"`
	Env           map[string]string `dynamodbav:"Env,omitempty"`
	Status        string            `dynamodbav:"Status"`
	LastConnected int64             `dynamodbav:"LastConnected,omitempty"`
	ErrorMessage  string            `dynamodbav:"ErrorMessage,omitempty"`
	CreatedAt     int64             `dynamodbav:"CreatedAt"`
	UpdatedAt     int64             `dynamodbav:"UpdatedAt"`
}

func (it *mcpConnectionItem) toModel() *models.MCPConnection {
	conn := &models.MCPConnection{
		Id:         it.Id,
		UserId:     it.UserId,
		ServerId:   it.ServerId,
		ServerName: it.ServerName,
		Command:    it.Command,
		Args:       it.Args,
		Env:        it.Env,
		Status:     models.ConnectionStatus(it.Status),
		CreatedAt:  time.Unix(it.CreatedAt, 0),
		UpdatedAt:  time.Unix(it.UpdatedAt, 0),
	}
	if it.LastConnected > 0 {
		lc := time.Unix(it.LastConnected, 0)
		conn.LastConnected = &lc
	}
	if it.ErrorMessage != "" {
		msg := it.ErrorMessage
		conn.ErrorMessage = &msg
	}
	return conn
}

// MCPConnectionsDB handles server connection table operations
type MCPConnectionsDB struct {
	client    *Client
	tableName string
}

// NewMCPConnectionsDB creates a new MCPConnectionsDB instance
func NewMCPConnectionsDB(client *Client, tableName string) *MCPConnectionsDB {
	return &MCPConnectionsDB{
		client:    client,
		tableName: tableName,
	}
}

func connectionKey(userId, serverId string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"UserId":   &types.AttributeValueMemberS{Value: userId},
		"ServerId": &types.AttributeValueMemberS{Value: serverId},
	}
}

// SaveConnection writes the connection row, replacing the launch fields and
// status of an existing row while keeping its Id and CreatedAt
func (db *MCPConnectionsDB) SaveConnection(ctx context.Context, conn *models.MCPConnection) error {
	av, err := attributevalue.MarshalMap(map[string]interface{}{
		":id":         conn.Id,
		":serverName": conn.ServerName,
		":command":    conn.Command,
		":args":       conn.Args,
		":env":        conn.Env,
		":status":     string(conn.Status),
		":createdAt":  conn.CreatedAt.Unix(),
		":updatedAt":  conn.UpdatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mcp connection: %w", err)
	}

	_, err = db.client.DynamoDB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(db.tableName),
		Key:       connectionKey(conn.UserId, conn.ServerId),
		UpdateExpression: aws.String("SET Id = if_not_exists(Id, :id), ServerName = :serverName, #cmd = :command, " +
			"#args = :args, #env = :env, #status = :status, CreatedAt = if_not_exists(CreatedAt, :createdAt), " +
			"UpdatedAt = :updatedAt REMOVE ErrorMessage"),
		ExpressionAttributeNames: map[string]string{
			"#cmd":    "Command",
			"#args":   "Args",
			"#env":    "Env",
			"#status": "Status",
		},
		ExpressionAttributeValues: av,
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"user_id":   conn.UserId,
			"server_id": conn.ServerId,
			"error":     err.Error(),
		}).Error("Failed to save MCP connection in DynamoDB")
		return fmt.Errorf("failed to save mcp connection: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"user_id":   conn.UserId,
		"server_id": conn.ServerId,
	}).Info("MCP connection saved in DynamoDB")
	return nil
}

// GetConnection retrieves the connection for (user, server)
func (db *MCPConnectionsDB) GetConnection(ctx context.Context, userId, serverId string) (*models.MCPConnection, error) {
	result, err := db.client.DynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(db.tableName),
		Key:       connectionKey(userId, serverId),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get mcp connection: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var item mcpConnectionItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mcp connection: %w", err)
	}
	return item.toModel(), nil
}

// GetConnectionsByUserId lists a user's connections, newest first
func (db *MCPConnectionsDB) GetConnectionsByUserId(ctx context.Context, userId string) ([]*models.MCPConnection, error) {
	result, err := db.client.DynamoDB.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(db.tableName),
		KeyConditionExpression: aws.String("UserId = :userId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userId": &types.AttributeValueMemberS{Value: userId},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query mcp connections: %w", err)
	}

	conns := make([]*models.MCPConnection, 0, len(result.Items))
	for _, raw := range result.Items {
		var item mcpConnectionItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal mcp connection: %w", err)
		}
		conns = append(conns, item.toModel())
	}

	sort.SliceStable(conns, func(i, j int) bool {
		return conns[i].CreatedAt.After(conns[j].CreatedAt)
	})
	return conns, nil
}

// UpdateStatus writes a status change. Moving to connected stamps
// LastConnected and drops ErrorMessage; moving to error stores errorMessage.
func (db *MCPConnectionsDB) UpdateStatus(ctx context.Context, userId, serverId string, status models.ConnectionStatus, errorMessage string, at time.Time) error {
	values := map[string]types.AttributeValue{
		":status":    &types.AttributeValueMemberS{Value: string(status)},
		":updatedAt": &types.AttributeValueMemberN{Value: unixString(at)},
	}
	expr := "SET #status = :status, UpdatedAt = :updatedAt"

	switch status {
	case models.StatusConnected:
		expr += ", LastConnected = :lastConnected REMOVE ErrorMessage"
		values[":lastConnected"] = &types.AttributeValueMemberN{Value: unixString(at)}
	case models.StatusError:
		expr += ", ErrorMessage = :errorMessage"
		values[":errorMessage"] = &types.AttributeValueMemberS{Value: errorMessage}
	}

	_, err := db.client.DynamoDB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(db.tableName),
		Key:                       connectionKey(userId, serverId),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(UserId)"),
		ExpressionAttributeNames:  map[string]string{"#status": "Status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		logger.WithFields(map[string]interface{}{
			"user_id":   userId,
			"server_id": serverId,
			"status":    status,
			"error":     err.Error(),
		}).Error("Failed to update MCP connection status in DynamoDB")
		return fmt.Errorf("failed to update mcp connection status: %w", err)
	}
	return nil
}

// DeleteConnection removes the connection for (user, server)
func (db *MCPConnectionsDB) DeleteConnection(ctx context.Context, userId, serverId string) error {
	_, err := db.client.DynamoDB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(db.tableName),
		Key:                 connectionKey(userId, serverId),
		ConditionExpression: aws.String("attribute_exists(UserId)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete mcp connection: %w", err)
	}
	return nil
}
