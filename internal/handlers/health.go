package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/novasocial/graph-backend/internal/services"
)

type HealthHandler struct {
	graphService services.GraphService
}

func NewHealthHandler(graphService services.GraphService) *HealthHandler {
	return &HealthHandler{graphService: graphService}
}

func (hh *HealthHandler) HealthCheck(c *gin.Context) {
	if err := hh.graphService.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
