package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/novasocial/graph-backend/internal/handlers"
	"github.com/novasocial/graph-backend/internal/middleware"
	"github.com/novasocial/graph-backend/internal/observability"
)

type RouterConfig struct {
	ServiceName   string
	CORSOrigins   []string
	GraphHandler  *handlers.GraphHandler
	AdminHandler  *handlers.AdminHandler
	HealthHandler *handlers.HealthHandler
	InternalAuth  *middleware.InternalAuth
	Metrics       *observability.Metrics
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Internal-Token"},
		AllowCredentials: true,
	}))

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "graph-backend"
	}
	router.Use(otelgin.Middleware(serviceName))

	router.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := router.Group("/api/v1")
	{
		// Reads are open to the mesh.
		api.GET("/users/:user_id/relations/:relation", cfg.GraphHandler.ListNeighbors)
		api.GET("/users/:user_id/mutuals", cfg.GraphHandler.MutualFollowers)
		api.GET("/users/:user_id/stats", cfg.GraphHandler.AggregateStats)
		api.GET("/users/:user_id/edges/:edge_type/:target_id", cfg.GraphHandler.EdgeExists)
		api.POST("/users/:user_id/edges/:edge_type/batch-exists", cfg.GraphHandler.BatchEdgeExists)

		// Writes require the internal token.
		writes := api.Group("/")
		writes.Use(cfg.InternalAuth.RequireToken())
		writes.PUT("/users/:user_id", cfg.GraphHandler.UpsertUser)
		writes.POST("/users/:user_id/edges/:edge_type/:target_id", cfg.GraphHandler.CreateEdge)
		writes.DELETE("/users/:user_id/edges/:edge_type/:target_id", cfg.GraphHandler.DeleteEdge)
	}

	admin := router.Group("/admin")
	admin.Use(cfg.InternalAuth.RequireToken())
	{
		admin.POST("/backfill", cfg.AdminHandler.RunBackfill)
		admin.POST("/verify", cfg.AdminHandler.RunVerification)
		admin.GET("/verify/latest", cfg.AdminHandler.LatestVerification)
	}

	return router
}
