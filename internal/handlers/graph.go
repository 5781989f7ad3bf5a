package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/novasocial/graph-backend/internal/domain"
	apperrors "github.com/novasocial/graph-backend/internal/pkg/errors"
	"github.com/novasocial/graph-backend/internal/services"
)

type GraphHandler struct {
	graphService services.GraphService
}

func NewGraphHandler(graphService services.GraphService) *GraphHandler {
	return &GraphHandler{graphService: graphService}
}

type upsertUserRequest struct {
	Username string `json:"username" binding:"required"`
}

func (gh *GraphHandler) UpsertUser(c *gin.Context) {
	userID, ok := pathUUID(c, "user_id")
	if !ok {
		return
	}
	var req upsertUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := gh.graphService.UpsertUser(c.Request.Context(), userID, req.Username); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID})
}

func (gh *GraphHandler) CreateEdge(c *gin.Context) {
	et, subject, object, ok := edgeParams(c)
	if !ok {
		return
	}
	if err := gh.graphService.CreateEdge(c.Request.Context(), et, subject, object); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"type": et, "subject_id": subject, "object_id": object})
}

func (gh *GraphHandler) DeleteEdge(c *gin.Context) {
	et, subject, object, ok := edgeParams(c)
	if !ok {
		return
	}
	if err := gh.graphService.DeleteEdge(c.Request.Context(), et, subject, object); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": et, "subject_id": subject, "object_id": object})
}

func (gh *GraphHandler) EdgeExists(c *gin.Context) {
	et, subject, object, ok := edgeParams(c)
	if !ok {
		return
	}
	exists, err := gh.graphService.EdgeExists(c.Request.Context(), et, subject, object)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

func (gh *GraphHandler) ListNeighbors(c *gin.Context) {
	userID, ok := pathUUID(c, "user_id")
	if !ok {
		return
	}
	et, dir, ok := neighborQuery(c)
	if !ok {
		return
	}
	limit, offset := pageParams(c)
	page, err := gh.graphService.ListNeighbors(c.Request.Context(), et, dir, userID, limit, offset)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (gh *GraphHandler) MutualFollowers(c *gin.Context) {
	userID, ok := pathUUID(c, "user_id")
	if !ok {
		return
	}
	limit, offset := pageParams(c)
	page, err := gh.graphService.MutualFollowers(c.Request.Context(), userID, limit, offset)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type batchExistsRequest struct {
	TargetIDs []uuid.UUID `json:"target_ids" binding:"required"`
}

func (gh *GraphHandler) BatchEdgeExists(c *gin.Context) {
	userID, ok := pathUUID(c, "user_id")
	if !ok {
		return
	}
	et, ok := pathEdgeType(c)
	if !ok {
		return
	}
	var req batchExistsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := gh.graphService.BatchEdgeExists(c.Request.Context(), et, userID, req.TargetIDs)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": result})
}

func (gh *GraphHandler) AggregateStats(c *gin.Context) {
	userID, ok := pathUUID(c, "user_id")
	if !ok {
		return
	}
	stats, err := gh.graphService.AggregateStats(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func pathEdgeType(c *gin.Context) (types.EdgeType, bool) {
	et := types.EdgeType(c.Param("edge_type"))
	if !et.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid edge type"})
		return et, false
	}
	return et, true
}

func edgeParams(c *gin.Context) (types.EdgeType, uuid.UUID, uuid.UUID, bool) {
	et, ok := pathEdgeType(c)
	if !ok {
		return et, uuid.Nil, uuid.Nil, false
	}
	subject, ok := pathUUID(c, "user_id")
	if !ok {
		return et, uuid.Nil, uuid.Nil, false
	}
	object, ok := pathUUID(c, "target_id")
	if !ok {
		return et, uuid.Nil, uuid.Nil, false
	}
	return et, subject, object, true
}

func neighborQuery(c *gin.Context) (types.EdgeType, types.Direction, bool) {
	switch c.Param("relation") {
	case "followers":
		return types.EdgeFollow, types.DirIn, true
	case "following":
		return types.EdgeFollow, types.DirOut, true
	case "muted":
		return types.EdgeMute, types.DirOut, true
	case "blocked":
		return types.EdgeBlock, types.DirOut, true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown relation"})
		return "", "", false
	}
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit = 50
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

func writeServiceError(c *gin.Context, err error) {
	var rollback *services.RollbackError
	var replica *services.ReplicaWriteError
	switch {
	case errors.Is(err, apperrors.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrReplicaOnly):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	case errors.As(err, &rollback):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "divergent": true})
	case errors.As(err, &replica):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
