package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	types "github.com/novasocial/graph-backend/internal/domain"
	"github.com/novasocial/graph-backend/internal/observability"
	"github.com/novasocial/graph-backend/internal/platform/logger"
)

// DualWriteService keeps the relational primary and the graph replica in step.
// Writes always land on the primary first; the replica write that follows is
// governed by the WriteMode. Reads go through the ReadRouter.
type DualWriteService struct {
	*ReadRouter

	primary RelationshipStore
	replica GraphReplica
	mode    WriteMode
	metrics *observability.Metrics
	log     *logger.Logger
}

var _ GraphService = (*DualWriteService)(nil)

func NewDualWriteService(primary RelationshipStore, replica GraphReplica, mode WriteMode, metrics *observability.Metrics, baseLog *logger.Logger) *DualWriteService {
	return &DualWriteService{
		ReadRouter: NewReadRouter(primary, replica, metrics, baseLog),
		primary:    primary,
		replica:    replica,
		mode:       mode,
		metrics:    metrics,
		log:        baseLog.With("service", "dual_write", "mode", mode.String()),
	}
}

func (s *DualWriteService) CreateEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) error {
	op := "create_" + string(et)

	edge, err := s.primary.CreateEdge(ctx, et, subject, object)
	if err != nil {
		return &PrimaryWriteError{Op: op, Err: err}
	}

	if err := s.replica.UpsertEdge(ctx, edge); err != nil {
		s.metrics.IncReplicaWriteFailure(op)
		if s.mode == WriteModeLenient {
			s.log.Warn("replica edge write failed, drift accepted until backfill",
				"operation", op, "subject_id", subject, "object_id", object, "error", err)
			return nil
		}
		if rbErr := s.primary.DeleteEdge(ctx, et, subject, object); rbErr != nil {
			s.metrics.IncRollbackFailed(op)
			s.log.Error("replica edge write failed and compensating delete failed, stores divergent",
				"operation", op, "subject_id", subject, "object_id", object,
				"write_error", err, "rollback_error", rbErr)
			return &RollbackError{Op: op, WriteErr: err, RollbackErr: rbErr}
		}
		s.log.Error("replica edge write failed, primary rolled back",
			"operation", op, "subject_id", subject, "object_id", object, "error", err)
		return &ReplicaWriteError{Op: op, RolledBack: true, Err: err}
	}

	s.metrics.IncReplicaWriteSuccess(op)
	return nil
}

// DeleteEdge never fails the call on a replica error, in either mode. A
// stranded replica edge is repaired by the next backfill, and failing the
// call would make the caller retry a primary delete that already happened.
func (s *DualWriteService) DeleteEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) error {
	op := "delete_" + string(et)

	if err := s.primary.DeleteEdge(ctx, et, subject, object); err != nil {
		return &PrimaryWriteError{Op: op, Err: err}
	}

	if err := s.replica.DeleteEdge(ctx, et, subject, object); err != nil {
		s.metrics.IncReplicaWriteFailure(op)
		s.log.Warn("replica edge delete failed, backfill will reconcile",
			"operation", op, "subject_id", subject, "object_id", object, "error", err)
		return nil
	}

	s.metrics.IncReplicaWriteSuccess(op)
	return nil
}

// UpsertUser mirrors the user projection into both stores. There is no
// compensating rollback here: the primary upsert may have overwritten an
// earlier username, so deleting the row would lose data. Strict mode reports
// the failure; lenient mode accepts the drift.
func (s *DualWriteService) UpsertUser(ctx context.Context, userID uuid.UUID, username string) error {
	const op = "upsert_user"

	node, err := s.primary.UpsertUser(ctx, userID, username)
	if err != nil {
		return &PrimaryWriteError{Op: op, Err: err}
	}

	if err := s.replica.UpsertNode(ctx, node); err != nil {
		s.metrics.IncReplicaWriteFailure(op)
		if s.mode == WriteModeLenient {
			s.log.Warn("replica node write failed, drift accepted until backfill",
				"operation", op, "user_id", userID, "error", err)
			return nil
		}
		s.log.Error("replica node write failed", "operation", op, "user_id", userID, "error", err)
		return &ReplicaWriteError{Op: op, Err: err}
	}

	s.metrics.IncReplicaWriteSuccess(op)
	return nil
}

// HealthCheck fails only when the primary is unhealthy. A down replica is
// logged and counted but does not fail the check, since every fallback-capable
// read can still be served.
func (s *DualWriteService) HealthCheck(ctx context.Context) error {
	if err := s.replica.HealthCheck(ctx); err != nil {
		s.metrics.SetReplicaUp(false)
		s.log.Warn("replica health check failed, reads degrade to primary", "error", err)
	} else {
		s.metrics.SetReplicaUp(true)
	}
	if err := s.primary.HealthCheck(ctx); err != nil {
		s.metrics.SetPrimaryUp(false)
		return fmt.Errorf("primary: %w", err)
	}
	s.metrics.SetPrimaryUp(true)
	return nil
}

func (s *DualWriteService) Mode() WriteMode { return s.mode }
