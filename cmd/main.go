package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/imyashkale/mcpbridge/internal/bridge"
	"github.com/imyashkale/mcpbridge/internal/catalog"
	"github.com/imyashkale/mcpbridge/internal/config"
	"github.com/imyashkale/mcpbridge/internal/database"
	"github.com/imyashkale/mcpbridge/internal/handlers"
	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/queue"
	"github.com/imyashkale/mcpbridge/internal/ratelimit"
	"github.com/imyashkale/mcpbridge/internal/repository"
	"github.com/imyashkale/mcpbridge/internal/router"
	"github.com/imyashkale/mcpbridge/internal/services"
	"github.com/imyashkale/mcpbridge/internal/setup"
	"github.com/imyashkale/mcpbridge/internal/troubleshoot"
)

const (
	serviceName    = "mcpbridge"
	serviceVersion = "1.0.0"
)

var completionEndpoints = []string{"generate", "analyze", "test", "chat"}

type repositories struct {
	oauth       repository.OAuthConnectionRepository
	connections repository.MCPConnectionRepository
	instances   repository.CloudInstanceRepository
}

func main() {

	ctx := context.Background()

	// Load the provider catalog, then the configuration for its providers
	cat, err := catalog.Load(os.Getenv("CATALOG_PATH"))
	if err != nil {
		logger.Fatalf("Failed to load catalog: %v", err)
	}

	cfg := config.New(cat.ProviderIDs()...)
	logger.Init(cfg.GetLogLevel())
	logger.WithFields(map[string]interface{}{
		"storage":   cfg.StorageBackend,
		"auth_mode": cfg.AuthMode,
		"providers": len(cat.Providers),
	}).Info("Configuration loaded successfully")

	repos, err := newRepositories(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// OAuth
	cipher, err := services.NewTokenCipher(cfg.TokenEncryptionKey)
	if err != nil {
		logger.Fatalf("Failed to initialize token cipher: %v", err)
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	exchanger := services.NewTokenExchanger(cat, cfg.OAuthClients, cfg.OAuthRedirectURL(), httpClient)
	oauthManager := services.NewOAuthManager(cat, exchanger, repos.oauth, cipher, services.NewPopupRelay())
	logger.Info("OAuth manager initialized")

	// Detection
	detector := services.NewServerDetector(
		services.NewGitHubClient(cfg.GitHubAPIURL, httpClient),
		services.NewNPMClient(cfg.NPMRegistryURL, httpClient),
		services.NewConfidenceScorer(cat.Scoring),
		cat,
	)

	// Local servers run in the process registry and are driven through its RPC surface
	serviceTokens := services.NewServiceTokenIssuer(cfg.JWTSecret, 5*time.Minute)
	registry := bridge.NewRegistry(bridge.StdioFactory(serviceName, serviceVersion))
	toolClient := services.NewToolCallClient(cfg.BridgeRPCURL, nil, serviceTokens)
	connectionManager := services.NewConnectionManager(repos.connections)
	connector := services.NewServerConnector(connectionManager, toolClient)
	logger.WithField("rpc_url", cfg.BridgeRPCURL).Info("Process bridge initialized")

	// Usage counters are written by a small worker pool
	usageQueue := queue.NewJobQueue(100)
	workerPool := queue.NewWorkerPool(usageQueue, cfg.UsageWorkers)

	var images services.ImageResolver
	if cfg.CloudBridgeECR {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Fatalf("Failed to load AWS configuration: %v", err)
		}
		images = services.NewECRImageResolver(awsCfg)
		logger.Info("ECR image resolver initialized")
	}

	cloudBridge := services.NewCloudBridgeClient(cfg.CloudBridgeURL, nil, serviceTokens, repos.instances, cat, images, usageQueue)
	workerPool.Start(cloudBridge.ProcessUsage)
	logger.WithFields(map[string]interface{}{
		"url":     cfg.CloudBridgeURL,
		"workers": cfg.UsageWorkers,
	}).Info("Cloud bridge client initialized")

	engine := troubleshoot.NewEngine()
	setupStore := setup.NewStore(setup.Deps{
		Detector:  detector,
		OAuth:     oauthManager,
		Installer: connector,
		Cloud:     cloudBridge,
		Analyzer:  engine,
	})

	limiter := ratelimit.New(cat.RateLimits)
	completion := services.NewCompletionProxy(cfg.CompletionServiceURL, cfg.CompletionAPIKey, nil)

	// Initialize handlers
	h := router.Handlers{
		Health:       handlers.NewHealthHandler(serviceName),
		Detect:       handlers.NewDetectHandler(detector, cat),
		OAuth:        handlers.NewOAuthHandler(oauthManager, exchanger),
		Bridge:       handlers.NewBridgeHandler(registry),
		Connections:  handlers.NewConnectionHandler(connectionManager, connector, engine),
		Cloud:        handlers.NewCloudHandler(cloudBridge, oauthManager),
		Troubleshoot: handlers.NewTroubleshootHandler(engine),
		Setup:        handlers.NewSetupHandler(setupStore),
		Completion:   handlers.NewCompletionHandler(completion, completionEndpoints...),
	}
	logger.Info("Handlers initialized")

	// Setup router
	r := router.Setup(h, router.Options{
		AuthMode:      cfg.AuthMode,
		JWTSecret:     cfg.JWTSecret,
		AllowedOrigin: cfg.AllowedOrigin,
		Limiter:       limiter,
	})

	// Setup graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down server gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Stop every server the bridge still runs
		toolClient.DisconnectAll(shutdownCtx)
		registry.CloseAll()
		logger.Info("Server processes stopped")

		// Close the usage queue and let the workers drain it
		usageQueue.Close()
		workerPool.Wait()
		logger.Info("All workers stopped")

		os.Exit(0)
	}()

	// Start server
	logger.WithField("port", cfg.GetPort()).Info("Starting server")
	if err := r.Run(":" + cfg.GetPort()); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}

func newRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	if cfg.UsesMemoryStorage() {
		logger.Warn("Using in-memory storage, data is lost on restart")
		return &repositories{
			oauth:       repository.NewMemoryOAuthConnectionRepository(),
			connections: repository.NewMemoryMCPConnectionRepository(),
			instances:   repository.NewMemoryCloudInstanceRepository(),
		}, nil
	}

	dbConfig := database.NewConfig(cfg)
	logger.WithFields(map[string]interface{}{
		"region": dbConfig.Region,
		"tables": dbConfig.Tables(),
	}).Info("Initializing DynamoDB client")

	client, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		return nil, err
	}

	logger.Info("Repositories initialized with DynamoDB backend")
	return &repositories{
		oauth:       repository.NewOAuthConnectionRepository(database.NewOAuthConnectionsDB(client, dbConfig.OAuthConnectionsTable)),
		connections: repository.NewMCPConnectionRepository(database.NewMCPConnectionsDB(client, dbConfig.MCPConnectionsTable)),
		instances:   repository.NewCloudInstanceRepository(database.NewCloudInstancesDB(client, dbConfig.CloudInstancesTable)),
	}, nil
}
