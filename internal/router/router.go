package router

import (
	"github.com/gin-gonic/gin"
	"github.com/imyashkale/mcpbridge/internal/handlers"
	"github.com/imyashkale/mcpbridge/internal/middleware"
	"github.com/imyashkale/mcpbridge/internal/ratelimit"
)

// Handlers bundles every handler the router mounts
type Handlers struct {
	Health       *handlers.HealthHandler
	Detect       *handlers.DetectHandler
	OAuth        *handlers.OAuthHandler
	Bridge       *handlers.BridgeHandler
	Connections  *handlers.ConnectionHandler
	Cloud        *handlers.CloudHandler
	Troubleshoot *handlers.TroubleshootHandler
	Setup        *handlers.SetupHandler
	Completion   *handlers.CompletionHandler
}

// Options are the router settings taken from the application config
type Options struct {
	AuthMode      string
	JWTSecret     string
	AllowedOrigin string
	Limiter       *ratelimit.Limiter
}

// Setup configures and returns the application router
func Setup(h Handlers, opts Options) *gin.Engine {

	// Create a new Gin router
	router := gin.Default()

	// Apply CORS middleware globally
	router.Use(middleware.CORS(opts.AllowedOrigin))

	// Public routes
	router.GET("/health", h.Health.Check)
	router.GET("/auth/oauth-callback", h.OAuth.Callback)

	// API v1 routes
	v1 := router.Group("/api/v1")

	// Apply authentication middleware to all routes
	v1.Use(middleware.Authentication(opts.AuthMode, opts.JWTSecret))

	// Detection
	v1.POST("/detect", h.Detect.Detect)
	v1.GET("/catalog/servers", h.Detect.Servers)

	// OAuth routes
	oauth := v1.Group("/oauth")
	{
		oauth.GET("/providers", h.OAuth.Providers)
		oauth.GET("/connections", h.OAuth.Connections)
		oauth.POST("/requirements", h.OAuth.Requirements)
		oauth.POST("/exchange", h.OAuth.Exchange)
		oauth.POST("/refresh", h.OAuth.RefreshToken)
		oauth.POST("/popups/:state/close", h.OAuth.ClosePopup)
		oauth.POST("/:provider/initiate", h.OAuth.Initiate)
		oauth.POST("/:provider/refresh", h.OAuth.Refresh)
		oauth.DELETE("/:provider", h.OAuth.Disconnect)
	}

	// Process bridge RPC
	mcp := v1.Group("/mcp")
	{
		mcp.POST("/connect", h.Bridge.Connect)
		mcp.POST("/disconnect", h.Bridge.Disconnect)
		mcp.GET("/tools", h.Bridge.Tools)
		mcp.POST("/execute", h.Bridge.Execute)
		mcp.GET("/servers", h.Bridge.Running)
	}

	// Stored server connections
	connections := v1.Group("/connections")
	{
		connections.GET("", h.Connections.List)
		connections.POST("", middleware.RateLimit(opts.Limiter, middleware.FixedEndpoint("save")), h.Connections.Save)
		connections.POST("/:server_id/connect", h.Connections.Connect)
		connections.POST("/:server_id/disconnect", h.Connections.Disconnect)
		connections.DELETE("/:server_id", h.Connections.Delete)
	}

	// Cloud bridge
	cloud := v1.Group("/cloud")
	{
		cloud.GET("/status", h.Cloud.Status)
		cloud.GET("/instances", h.Cloud.List)
		cloud.POST("/instances", h.Cloud.Create)
		cloud.POST("/instances/:id/refresh", h.Cloud.Refresh)
		cloud.GET("/instances/:id/tools", h.Cloud.Tools)
		cloud.POST("/instances/:id/execute", h.Cloud.Execute)
		cloud.DELETE("/instances/:id", h.Cloud.Delete)
	}

	// Troubleshooting
	troubleshoot := v1.Group("/troubleshoot")
	{
		troubleshoot.POST("/analyze", h.Troubleshoot.Analyze)
		troubleshoot.GET("/common", h.Troubleshoot.Common)
		troubleshoot.GET("/system", h.Troubleshoot.System)
	}

	// Setup wizard
	session := v1.Group("/setup/session")
	{
		session.POST("", h.Setup.Open)
		session.GET("", h.Setup.Get)
		session.DELETE("", h.Setup.Close)
		session.POST("/submit", h.Setup.Submit)
		session.POST("/confirm", h.Setup.Confirm)
		session.POST("/back", h.Setup.Back)
		session.POST("/continue", h.Setup.Continue)
		session.POST("/retry", h.Setup.Retry)
		session.POST("/cloud-bridge", h.Setup.CloudBridge)
		session.POST("/oauth/:provider", h.Setup.ConnectProvider)
		session.POST("/step", h.Setup.ExecuteStep)
	}

	// AI completion proxy
	v1.POST("/ai/:endpoint", middleware.RateLimit(opts.Limiter, middleware.ParamEndpoint("endpoint")), h.Completion.Forward)

	return router
}
