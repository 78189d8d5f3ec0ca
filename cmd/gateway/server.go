package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	_ "github.com/unifiedui/docdb-gateway/docs"
	"github.com/unifiedui/docdb-gateway/internal/api/handlers"
	"github.com/unifiedui/docdb-gateway/internal/api/middleware"
	"github.com/unifiedui/docdb-gateway/internal/api/routes"
	"github.com/unifiedui/docdb-gateway/internal/config"
	"github.com/unifiedui/docdb-gateway/internal/core/docdb"
	"github.com/unifiedui/docdb-gateway/internal/infrastructure/docdb/mongodb"
	"github.com/unifiedui/docdb-gateway/internal/pkg/logger"
	"github.com/unifiedui/docdb-gateway/internal/services/compiler"
	"github.com/unifiedui/docdb-gateway/internal/services/executor"
	"github.com/unifiedui/docdb-gateway/internal/services/pool"
	"github.com/unifiedui/docdb-gateway/internal/telemetry/metrics"
)

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Verbosity: flags.verbosity,
	})
	log.Debug().Str("config", cfg.String()).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connector, err := createConnector(cfg.DocDB)
	if err != nil {
		return fmt.Errorf("failed to initialize document db connector: %w", err)
	}

	connPool, err := pool.New(ctx, connector, poolOptions(cfg.Pool), log)
	if err != nil {
		return fmt.Errorf("failed to initialize connection pool: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := connPool.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("failed to close connection pool")
		}
	}()
	if connPool.State() != pool.StateReady {
		log.Warn().Str("backend", connector.Name()).Msg("backend unreachable at startup, serving 503 until it recovers")
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	router := setupRouter(cfg, connector.Name(), connPool, log)

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("address", srv.Addr).Str("backend", connector.Name()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server exited")
	return nil
}

// createConnector creates a document database connector based on the configuration.
func createConnector(cfg config.DocDBConfig) (docdb.Connector, error) {
	switch docdb.Type(cfg.Type) {
	// Cosmos DB speaks the MongoDB wire protocol
	case docdb.TypeMongoDB, docdb.TypeCosmosDB:
		return mongodb.NewConnector(&mongodb.ClientConfig{
			URI:                    cfg.URI,
			DatabaseName:           cfg.Database,
			Username:               cfg.Username,
			Password:               cfg.Password,
			AuthSource:             cfg.AuthSource,
			AppName:                cfg.AppName,
			ConnectTimeout:         cfg.ConnectTimeout,
			ServerSelectionTimeout: cfg.ServerSelectionTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported docdb type: %s", cfg.Type)
	}
}

func poolOptions(cfg config.PoolConfig) pool.Options {
	return pool.Options{
		MinSize:                  cfg.MinSize,
		MaxSize:                  cfg.MaxSize,
		WaitForLease:             cfg.WaitForLease,
		LeaseTimeout:             cfg.LeaseTimeout,
		IdleTTL:                  cfg.IdleTTL,
		DialTimeout:              cfg.DialTimeout,
		PingTimeout:              cfg.PingTimeout,
		MaintenanceInterval:      cfg.MaintenanceInterval,
		ReconnectInitialInterval: cfg.ReconnectInitialInterval,
		ReconnectMaxInterval:     cfg.ReconnectMaxInterval,
		UnavailableAfter:         cfg.UnavailableAfter,
	}
}

// setupRouter creates and configures the Gin router.
func setupRouter(cfg *config.Config, backend string, connPool *pool.Pool, log zerolog.Logger) *gin.Engine {
	router := gin.New()

	collector := metrics.NewCollector(cfg.Metrics, nil)
	if collector.Enabled() {
		collector.RegisterPool(connPool, cfg.Metrics.Namespace)
	}

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowOrigins
	}

	routeConfig := &routes.Config{
		HealthHandler: handlers.NewHealthHandler(connPool, backend),
		CollectionsHandler: handlers.NewCollectionsHandler(
			compiler.New(compiler.Options{
				DefaultLimit:    cfg.Query.DefaultLimit,
				MaxLimit:        cfg.Query.MaxLimit,
				MaxFilterBytes:  cfg.Query.MaxFilterBytes,
				MaxFilterDepth:  cfg.Query.MaxFilterDepth,
				DeniedOperators: cfg.Query.DeniedOperators,
			}),
			connPool,
			executor.New(executor.Options{
				Timeout:   cfg.Query.Timeout,
				BatchSize: cfg.Query.BatchSize,
			}, log),
			collector,
		),
		Metrics:     collector,
		CORS:        &corsConfig,
		DocsEnabled: cfg.Docs.Enabled,
	}

	routes.SetupWithMiddleware(
		router,
		routeConfig,
		middleware.NewLoggingMiddlewareWithLogger(log),
		middleware.NewErrorMiddleware(),
	)

	return router
}
