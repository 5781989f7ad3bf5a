package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/novasocial/graph-backend/internal/app"
	redisclient "github.com/novasocial/graph-backend/internal/clients/redis"
	"github.com/novasocial/graph-backend/internal/data/graph"
	"github.com/novasocial/graph-backend/internal/data/social"
	"github.com/novasocial/graph-backend/internal/db"
	"github.com/novasocial/graph-backend/internal/handlers"
	"github.com/novasocial/graph-backend/internal/middleware"
	"github.com/novasocial/graph-backend/internal/observability"
	"github.com/novasocial/graph-backend/internal/platform/envutil"
	"github.com/novasocial/graph-backend/internal/platform/logger"
	"github.com/novasocial/graph-backend/internal/platform/neo4jdb"
	"github.com/novasocial/graph-backend/internal/server"
	"github.com/novasocial/graph-backend/internal/services"
)

func main() {
	logMode := envutil.Str("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	log.Info("Starting graph backend", "write_mode", cfg.WriteMode.String(), "replica_enabled", cfg.ReplicaEnabled)

	shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	if shutdownOTel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOTel(ctx)
		}()
	}

	var metrics *observability.Metrics
	if observability.Enabled() {
		metrics = observability.New()
	}

	// Primary store.
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	store := social.NewStore(thePG, log)
	runsRepo := social.NewRunsRepo(thePG, log)

	// Replica, when provisioned. Boot fails rather than silently degrading:
	// running primary-only is an explicit configuration choice.
	var graphService services.GraphService
	var backfillJob *services.BackfillJob
	var verifier *services.ConsistencyVerifier
	if cfg.ReplicaEnabled {
		neoClient, err := neo4jdb.New(neo4jdb.Config{
			URI:         envutil.Str("NEO4J_URI", "bolt://localhost:7687"),
			User:        envutil.Str("NEO4J_USER", "neo4j"),
			Password:    envutil.Str("NEO4J_PASSWORD", ""),
			Database:    envutil.Str("NEO4J_DATABASE", "neo4j"),
			TimeoutSec:  envutil.Int("NEO4J_TIMEOUT_SEC", 10),
			MaxPoolSize: envutil.Int("NEO4J_MAX_POOL_SIZE", 50),
		}, log)
		if err != nil {
			log.Error("Neo4j init failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = neoClient.Close(ctx)
		}()

		replica := graph.NewReplica(neoClient, log)
		if err := replica.EnsureSchema(context.Background()); err != nil {
			log.Error("Neo4j schema setup failed", "error", err)
			os.Exit(1)
		}

		graphService = services.NewDualWriteService(store, replica, cfg.WriteMode, metrics, log)
		backfillJob = services.NewBackfillJob(store, replica, runsRepo, metrics, log, cfg.BackfillBatchSize)
		verifier = services.NewConsistencyVerifier(store, replica, runsRepo, metrics, log, cfg.VerifySampleSize)
	} else {
		log.Warn("Graph replica disabled, running primary-only")
		graphService = services.NewPrimaryOnlyService(store, metrics, log)
	}

	if cfg.CacheEnabled {
		cache, err := redisclient.NewGraphCache(log)
		if err != nil {
			log.Error("Redis cache init failed", "error", err)
			os.Exit(1)
		}
		defer cache.Close()
		graphService = services.NewCachedGraphService(graphService, cache, metrics, log, cfg.CacheTTL)
	}

	graphHandler := handlers.NewGraphHandler(graphService)
	adminHandler := handlers.NewAdminHandler(backfillJob, verifier, runsRepo)
	healthHandler := handlers.NewHealthHandler(graphService)
	internalAuth := middleware.NewInternalAuth(cfg.InternalWriteToken, log)

	router := server.NewRouter(server.RouterConfig{
		ServiceName:   cfg.ServiceName,
		CORSOrigins:   cfg.CORSOrigins,
		GraphHandler:  graphHandler,
		AdminHandler:  adminHandler,
		HealthHandler: healthHandler,
		InternalAuth:  internalAuth,
		Metrics:       metrics,
	})

	log.Info("Server listening", "port", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
