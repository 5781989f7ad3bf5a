package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/novasocial/graph-backend/internal/data/social"
	types "github.com/novasocial/graph-backend/internal/domain"
	"github.com/novasocial/graph-backend/internal/observability"
	"github.com/novasocial/graph-backend/internal/platform/logger"
)

const defaultBackfillBatch = 1000

// BackfillJob rebuilds the graph replica from the relational primary. Every
// write it issues is a MERGE carrying the primary's created_at, so rerunning
// it against a half-populated or already-complete replica converges to the
// same state. Users migrate before edges so edge MERGEs never materialize a
// node without its username.
type BackfillJob struct {
	primary   RelationshipStore
	replica   GraphReplica
	runs      social.RunsRepo
	metrics   *observability.Metrics
	log       *logger.Logger
	batchSize int
}

func NewBackfillJob(primary RelationshipStore, replica GraphReplica, runs social.RunsRepo, metrics *observability.Metrics, baseLog *logger.Logger, batchSize int) *BackfillJob {
	if batchSize <= 0 {
		batchSize = defaultBackfillBatch
	}
	return &BackfillJob{
		primary:   primary,
		replica:   replica,
		runs:      runs,
		metrics:   metrics,
		log:       baseLog.With("service", "backfill"),
		batchSize: batchSize,
	}
}

// Run executes one full backfill pass and records it. The returned run row
// carries the per-entity counts whether the pass succeeded or failed.
func (j *BackfillJob) Run(ctx context.Context) (*types.BackfillRun, error) {
	run := &types.BackfillRun{Status: types.RunStatusRunning, StartedAt: time.Now().UTC()}
	if j.runs != nil {
		if err := j.runs.CreateBackfillRun(ctx, run); err != nil {
			return nil, err
		}
	}
	j.log.Info("backfill starting", "run_id", run.ID, "batch_size", j.batchSize)

	err := j.execute(ctx, run)
	if err != nil {
		run.Status = types.RunStatusFailed
		run.Error = err.Error()
		j.log.Error("backfill failed", "run_id", run.ID, "error", err,
			"users", run.UsersMigrated, "follows", run.FollowsMigrated,
			"mutes", run.MutesMigrated, "blocks", run.BlocksMigrated)
	} else {
		run.Status = types.RunStatusSucceeded
		j.log.Info("backfill complete", "run_id", run.ID,
			"users", run.UsersMigrated, "follows", run.FollowsMigrated,
			"mutes", run.MutesMigrated, "blocks", run.BlocksMigrated)
	}
	if detail, mErr := json.Marshal(map[string]any{"batch_size": j.batchSize}); mErr == nil {
		run.Detail = datatypes.JSON(detail)
	}
	if j.runs != nil {
		if fErr := j.runs.FinishBackfillRun(ctx, run); fErr != nil {
			j.log.Error("backfill run record update failed", "run_id", run.ID, "error", fErr)
		}
	}
	return run, err
}

func (j *BackfillJob) execute(ctx context.Context, run *types.BackfillRun) error {
	if err := j.replica.EnsureSchema(ctx); err != nil {
		return err
	}

	users, err := j.migrateUsers(ctx)
	run.UsersMigrated = users
	if err != nil {
		return err
	}

	// Edge types touch disjoint relationship sets, so they migrate in
	// parallel. Order within a type is still the primary's keyset order.
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, et := range types.EdgeTypes() {
		g.Go(func() error {
			n, err := j.migrateEdges(gctx, et)
			mu.Lock()
			switch et {
			case types.EdgeFollow:
				run.FollowsMigrated = n
			case types.EdgeMute:
				run.MutesMigrated = n
			case types.EdgeBlock:
				run.BlocksMigrated = n
			}
			mu.Unlock()
			return err
		})
	}
	return g.Wait()
}

func (j *BackfillJob) migrateUsers(ctx context.Context) (int64, error) {
	var total int64
	var cursor types.Cursor
	for {
		nodes, err := j.primary.ListUsers(ctx, cursor, j.batchSize)
		if err != nil {
			return total, err
		}
		if len(nodes) == 0 {
			return total, nil
		}
		if err := j.replica.UpsertNodes(ctx, nodes); err != nil {
			return total, err
		}
		total += int64(len(nodes))
		j.metrics.AddBackfillMigrated("users", int64(len(nodes)))

		last := nodes[len(nodes)-1]
		cursor = types.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
		if len(nodes) < j.batchSize {
			return total, nil
		}
	}
}

func (j *BackfillJob) migrateEdges(ctx context.Context, et types.EdgeType) (int64, error) {
	var total int64
	var cursor types.EdgeCursor
	for {
		edges, err := j.primary.ListEdges(ctx, et, cursor, j.batchSize)
		if err != nil {
			return total, err
		}
		if len(edges) == 0 {
			return total, nil
		}
		if err := j.replica.UpsertEdges(ctx, edges); err != nil {
			return total, err
		}
		total += int64(len(edges))
		j.metrics.AddBackfillMigrated(string(et), int64(len(edges)))

		last := edges[len(edges)-1]
		cursor = types.EdgeCursor{CreatedAt: last.CreatedAt, SubjectID: last.SubjectID, ObjectID: last.ObjectID}
		if len(edges) < j.batchSize {
			return total, nil
		}
	}
}
