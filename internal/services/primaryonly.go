package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/novasocial/graph-backend/internal/domain"
	"github.com/novasocial/graph-backend/internal/observability"
	"github.com/novasocial/graph-backend/internal/platform/logger"
)

// PrimaryOnlyService runs the same surface without a graph replica, for
// deployments that have not provisioned one yet. Graph-native queries return
// ErrReplicaOnly instead of pretending SQL can answer them.
type PrimaryOnlyService struct {
	primary RelationshipStore
	metrics *observability.Metrics
	log     *logger.Logger
}

var _ GraphService = (*PrimaryOnlyService)(nil)

func NewPrimaryOnlyService(primary RelationshipStore, metrics *observability.Metrics, baseLog *logger.Logger) *PrimaryOnlyService {
	return &PrimaryOnlyService{
		primary: primary,
		metrics: metrics,
		log:     baseLog.With("service", "primary_only"),
	}
}

func (s *PrimaryOnlyService) UpsertUser(ctx context.Context, userID uuid.UUID, username string) error {
	_, err := s.primary.UpsertUser(ctx, userID, username)
	if err != nil {
		return &PrimaryWriteError{Op: "upsert_user", Err: err}
	}
	return nil
}

func (s *PrimaryOnlyService) CreateEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) error {
	if _, err := s.primary.CreateEdge(ctx, et, subject, object); err != nil {
		return &PrimaryWriteError{Op: "create_" + string(et), Err: err}
	}
	return nil
}

func (s *PrimaryOnlyService) DeleteEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) error {
	if err := s.primary.DeleteEdge(ctx, et, subject, object); err != nil {
		return &PrimaryWriteError{Op: "delete_" + string(et), Err: err}
	}
	return nil
}

func (s *PrimaryOnlyService) EdgeExists(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) (bool, error) {
	return s.primary.EdgeExists(ctx, et, subject, object)
}

func (s *PrimaryOnlyService) ListNeighbors(ctx context.Context, et types.EdgeType, dir types.Direction, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error) {
	return s.primary.ListNeighbors(ctx, et, dir, anchor, limit, offset)
}

func (s *PrimaryOnlyService) MutualFollowers(ctx context.Context, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error) {
	return s.primary.MutualFollowers(ctx, anchor, limit, offset)
}

func (s *PrimaryOnlyService) BatchEdgeExists(ctx context.Context, et types.EdgeType, subject uuid.UUID, targets []uuid.UUID) (map[string]bool, error) {
	return nil, ErrReplicaOnly
}

func (s *PrimaryOnlyService) AggregateStats(ctx context.Context, userID uuid.UUID) (types.GraphStats, error) {
	return types.GraphStats{}, ErrReplicaOnly
}

func (s *PrimaryOnlyService) HealthCheck(ctx context.Context) error {
	err := s.primary.HealthCheck(ctx)
	s.metrics.SetPrimaryUp(err == nil)
	return err
}
