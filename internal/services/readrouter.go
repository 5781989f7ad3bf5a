package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	types "github.com/novasocial/graph-backend/internal/domain"
	"github.com/novasocial/graph-backend/internal/observability"
	"github.com/novasocial/graph-backend/internal/platform/logger"
)

// ReadRouter serves graph reads from the replica and falls back to the
// primary when the replica errors. Fallback covers only queries the primary
// can answer with plain SQL; the graph-native ones (batch existence,
// aggregate stats) are replica-only.
type ReadRouter struct {
	primary RelationshipStore
	replica GraphReplica
	metrics *observability.Metrics
	log     *logger.Logger
}

func NewReadRouter(primary RelationshipStore, replica GraphReplica, metrics *observability.Metrics, baseLog *logger.Logger) *ReadRouter {
	return &ReadRouter{
		primary: primary,
		replica: replica,
		metrics: metrics,
		log:     baseLog.With("service", "read_router"),
	}
}

func (r *ReadRouter) EdgeExists(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) (bool, error) {
	op := "edge_exists_" + string(et)
	start := time.Now()
	ok, err := r.replica.EdgeExists(ctx, et, subject, object)
	r.metrics.ObserveReplicaQuery(op, time.Since(start))
	if err == nil {
		return ok, nil
	}
	r.fellBack(op, err)
	return r.primary.EdgeExists(ctx, et, subject, object)
}

func (r *ReadRouter) ListNeighbors(ctx context.Context, et types.EdgeType, dir types.Direction, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error) {
	op := "list_neighbors_" + string(et)
	start := time.Now()
	page, err := r.replica.GetNeighbors(ctx, et, dir, anchor, limit, offset)
	r.metrics.ObserveReplicaQuery(op, time.Since(start))
	if err == nil {
		return page, nil
	}
	r.fellBack(op, err)
	return r.primary.ListNeighbors(ctx, et, dir, anchor, limit, offset)
}

func (r *ReadRouter) MutualFollowers(ctx context.Context, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error) {
	const op = "mutual_followers"
	start := time.Now()
	page, err := r.replica.MutualFollowers(ctx, anchor, limit, offset)
	r.metrics.ObserveReplicaQuery(op, time.Since(start))
	if err == nil {
		return page, nil
	}
	r.fellBack(op, err)
	return r.primary.MutualFollowers(ctx, anchor, limit, offset)
}

// BatchEdgeExists has no relational fallback: the single-roundtrip UNWIND is
// the point of the query, and N point lookups against the primary would turn
// a replica outage into a primary hot spot.
func (r *ReadRouter) BatchEdgeExists(ctx context.Context, et types.EdgeType, subject uuid.UUID, targets []uuid.UUID) (map[string]bool, error) {
	op := "batch_edge_exists_" + string(et)
	start := time.Now()
	out, err := r.replica.BatchEdgeExists(ctx, et, subject, targets)
	r.metrics.ObserveReplicaQuery(op, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReplicaOnly, err)
	}
	return out, nil
}

// AggregateStats is replica-only for the same reason.
func (r *ReadRouter) AggregateStats(ctx context.Context, userID uuid.UUID) (types.GraphStats, error) {
	const op = "aggregate_stats"
	start := time.Now()
	stats, err := r.replica.AggregateStats(ctx, userID)
	r.metrics.ObserveReplicaQuery(op, time.Since(start))
	if err != nil {
		return types.GraphStats{}, fmt.Errorf("%w: %w", ErrReplicaOnly, err)
	}
	return stats, nil
}

func (r *ReadRouter) fellBack(op string, err error) {
	r.metrics.IncReadFallback(op)
	r.log.Warn("replica read failed, serving from primary", "operation", op, "error", err)
}
