// Package routes defines the HTTP routes for the DocDB Gateway.
package routes

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/unifiedui/docdb-gateway/internal/api/handlers"
	"github.com/unifiedui/docdb-gateway/internal/api/middleware"
	"github.com/unifiedui/docdb-gateway/internal/telemetry/metrics"
)

// OpsPrefix groups the gateway's own endpoints. Collection names starting
// with an underscore stay reachable because only the exact sub-paths below
// are registered.
const OpsPrefix = "/_gateway"

// Config holds the dependencies for setting up routes.
type Config struct {
	HealthHandler      *handlers.HealthHandler
	CollectionsHandler *handlers.CollectionsHandler
	Metrics            *metrics.Collector
	CORS               *middleware.CORSConfig
	DocsEnabled        bool
}

// Setup configures all routes on the Gin engine.
func Setup(r *gin.Engine, cfg *Config) {
	// /users/ is not /users
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.HandleMethodNotAllowed = true
	r.NoRoute(middleware.NotFound())
	r.NoMethod(middleware.MethodNotAllowed())

	ops := r.Group(OpsPrefix)
	{
		ops.GET("/health", cfg.HealthHandler.Health)
		ops.GET("/ready", cfg.HealthHandler.Ready)
		ops.GET("/live", cfg.HealthHandler.Live)

		if cfg.Metrics.Enabled() {
			ops.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
		}
		if cfg.DocsEnabled {
			ops.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
		}
	}

	r.GET("/:collection", cfg.CollectionsHandler.Find)
}

// SetupWithMiddleware sets up routes with common middleware.
func SetupWithMiddleware(r *gin.Engine, cfg *Config, loggingMw *middleware.LoggingMiddleware, errorMw *middleware.ErrorMiddleware) {
	// Apply global middleware
	r.Use(loggingMw.RequestLogger())
	r.Use(loggingMw.Logger())
	if cfg.Metrics.Enabled() {
		r.Use(cfg.Metrics.Middleware(middleware.ErrorCode))
	}
	r.Use(errorMw.Recovery())
	// Global, so preflights reach it through the 404/405 handler chains
	if cfg.CORS != nil {
		r.Use(middleware.NewCORSMiddleware(*cfg.CORS))
	}

	// Setup routes
	Setup(r, cfg)
}
