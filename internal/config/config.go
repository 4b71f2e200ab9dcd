package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	StorageDynamoDB = "dynamodb"
	StorageMemory   = "memory"

	AuthModeVerify     = "verify"
	AuthModeUnverified = "unverified"
)

// OAuthClient holds the client credentials registered with one OAuth provider
type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port          string
	AppBaseURL    string
	AllowedOrigin string

	// Logging configuration
	LogLevel string

	// Authentication
	AuthMode  string
	JWTSecret string

	// Storage
	StorageBackend            string
	AWSRegion                 string
	OAuthConnectionsTableName string
	MCPConnectionsTableName   string
	CloudInstancesTableName   string
	TokenEncryptionKey        string

	// OAuth provider credentials keyed by provider id
	OAuthClients map[string]OAuthClient

	// Upstream services
	GitHubAPIURL         string
	NPMRegistryURL       string
	BridgeRPCURL         string
	CloudBridgeURL       string
	CloudBridgeECR       bool
	CompletionServiceURL string
	CompletionAPIKey     string

	// Background workers
	UsageWorkers int
}

// New creates a new Config by loading the .env file (if present) and the
// OS environment. OS environment variables take precedence over .env values.
// providerIDs lists the OAuth providers whose <ID>_CLIENT_ID and
// <ID>_CLIENT_SECRET variables should be read.
// Panics if required configuration values are missing or invalid.
func New(providerIDs ...string) *Config {
	_ = godotenv.Load(filepath.Join(".", ".env"))

	port := getEnvOrDefault("PORT", "3001")

	cfg := &Config{
		Port:          port,
		AppBaseURL:    strings.TrimRight(getEnvOrDefault("APP_BASE_URL", "http://localhost:3000"), "/"),
		AllowedOrigin: os.Getenv("CORS_ALLOWED_ORIGIN"),

		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),

		AuthMode:  getEnvOrDefault("AUTH_MODE", AuthModeVerify),
		JWTSecret: os.Getenv("JWT_SECRET"),

		StorageBackend:            getEnvOrDefault("STORAGE_BACKEND", StorageDynamoDB),
		AWSRegion:                 getEnvOrDefault("AWS_REGION", "us-east-1"),
		OAuthConnectionsTableName: getEnvOrDefault("OAUTH_CONNECTIONS_TABLE_NAME", "OAuthConnections"),
		MCPConnectionsTableName:   getEnvOrDefault("MCP_CONNECTIONS_TABLE_NAME", "MCPConnections"),
		CloudInstancesTableName:   getEnvOrDefault("CLOUD_INSTANCES_TABLE_NAME", "CloudBridgeInstances"),
		TokenEncryptionKey:        os.Getenv("TOKEN_ENCRYPTION_KEY"),

		OAuthClients: make(map[string]OAuthClient, len(providerIDs)),

		GitHubAPIURL:         getEnvOrDefault("GITHUB_API_URL", "https://api.github.com"),
		NPMRegistryURL:       getEnvOrDefault("NPM_REGISTRY_URL", "https://registry.npmjs.org"),
		BridgeRPCURL:         getEnvOrDefault("BRIDGE_RPC_URL", "http://localhost:"+port+"/api/v1/mcp"),
		CloudBridgeURL:       getEnvOrDefault("CLOUD_BRIDGE_URL", "https://bridge.prompt.supply"),
		CloudBridgeECR:       getEnvBool("CLOUD_BRIDGE_ECR_ENABLED", false),
		CompletionServiceURL: os.Getenv("COMPLETION_SERVICE_URL"),
		CompletionAPIKey:     os.Getenv("COMPLETION_API_KEY"),

		UsageWorkers: getEnvInt("USAGE_WORKERS", 2),
	}

	for _, id := range providerIDs {
		prefix := strings.ToUpper(id)
		cfg.OAuthClients[id] = OAuthClient{
			ClientID:     os.Getenv(prefix + "_CLIENT_ID"),
			ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
		}
	}

	cfg.validate()

	return cfg
}

// validate checks that all required configuration values are present and valid
func (c *Config) validate() {
	var missing []string

	if c.TokenEncryptionKey == "" {
		missing = append(missing, "TOKEN_ENCRYPTION_KEY")
	}
	if c.AuthMode == AuthModeVerify && c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		panic(fmt.Sprintf("Missing required configuration values: %v", missing))
	}

	// AES-256 needs a 32 byte key
	if len(c.TokenEncryptionKey) != 32 {
		panic(fmt.Sprintf("TOKEN_ENCRYPTION_KEY must be exactly 32 characters (got %d)", len(c.TokenEncryptionKey)))
	}

	switch c.StorageBackend {
	case StorageDynamoDB, StorageMemory:
	default:
		panic(fmt.Sprintf("STORAGE_BACKEND must be '%s' or '%s' (got '%s')", StorageDynamoDB, StorageMemory, c.StorageBackend))
	}

	switch c.AuthMode {
	case AuthModeVerify, AuthModeUnverified:
	default:
		panic(fmt.Sprintf("AUTH_MODE must be '%s' or '%s' (got '%s')", AuthModeVerify, AuthModeUnverified, c.AuthMode))
	}

	if c.UsageWorkers < 1 {
		panic(fmt.Sprintf("USAGE_WORKERS must be at least 1 (got %d)", c.UsageWorkers))
	}
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetPort returns the server port
func (c *Config) GetPort() string {
	return c.Port
}

// GetLogLevel returns the logging level
func (c *Config) GetLogLevel() string {
	return c.LogLevel
}

// OAuthRedirectURL returns the callback URL registered with OAuth providers
func (c *Config) OAuthRedirectURL() string {
	return c.AppBaseURL + "/auth/oauth-callback"
}

// OAuthClient returns the credentials for a provider; ok is false when no client id is set
func (c *Config) OAuthClient(providerID string) (OAuthClient, bool) {
	client, ok := c.OAuthClients[providerID]
	if !ok || client.ClientID == "" {
		return OAuthClient{}, false
	}
	return client, true
}

// UsesMemoryStorage reports whether repositories should be kept in process memory
func (c *Config) UsesMemoryStorage() bool {
	return c.StorageBackend == StorageMemory
}
