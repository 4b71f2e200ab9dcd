package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	appConfig "github.com/imyashkale/mcpbridge/internal/config"
	"github.com/imyashkale/mcpbridge/internal/logger"
)

var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional write loses against the stored state
	ErrConflict = errors.New("record was modified concurrently")
)

// Config holds the DynamoDB configuration
type Config struct {
	Region                string
	OAuthConnectionsTable string
	MCPConnectionsTable   string
	CloudInstancesTable   string
}

// Client wraps the DynamoDB client
type Client struct {
	DynamoDB *dynamodb.Client
}

// NewConfig creates a new database configuration from the application config
func NewConfig(appCfg *appConfig.Config) *Config {
	return &Config{
		Region:                appCfg.AWSRegion,
		OAuthConnectionsTable: appCfg.OAuthConnectionsTableName,
		MCPConnectionsTable:   appCfg.MCPConnectionsTableName,
		CloudInstancesTable:   appCfg.CloudInstancesTableName,
	}
}

// Tables returns every table the service reads or writes
func (c *Config) Tables() []string {
	return []string{c.OAuthConnectionsTable, c.MCPConnectionsTable, c.CloudInstancesTable}
}

// NewClient creates a new DynamoDB client and checks that the configured tables are reachable
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	for _, table := range cfg.Tables() {
		if err := ensureTableExists(ctx, dynamoClient, table); err != nil {
			logger.WithFields(map[string]interface{}{
				"table": table,
				"error": err.Error(),
			}).Warn("Could not verify table existence")
		}
	}

	return &Client{DynamoDB: dynamoClient}, nil
}

// ensureTableExists checks if the DynamoDB table exists
func ensureTableExists(ctx context.Context, client *dynamodb.Client, tableName string) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		return fmt.Errorf("table %s does not exist or cannot be accessed: %w", tableName, err)
	}

	logger.WithField("table", tableName).Info("DynamoDB table verified")
	return nil
}
