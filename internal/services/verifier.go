package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/novasocial/graph-backend/internal/data/social"
	types "github.com/novasocial/graph-backend/internal/domain"
	"github.com/novasocial/graph-backend/internal/observability"
	"github.com/novasocial/graph-backend/internal/platform/logger"
)

const defaultVerifySample = 10

// Mismatch is one observed divergence between the stores.
type Mismatch struct {
	Kind     string         `json:"kind"` // "node_count", "edge_count", "neighbor_count"
	EdgeType types.EdgeType `json:"edge_type,omitempty"`
	UserID   uuid.UUID      `json:"user_id,omitempty"`
	Primary  int64          `json:"primary"`
	Replica  int64          `json:"replica"`
}

// VerificationReport is the outcome of one verifier pass.
type VerificationReport struct {
	Passed     bool       `json:"passed"`
	SampleSize int        `json:"sample_size"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// ConsistencyVerifier spot-checks the replica against the primary. It checks
// aggregate counts first; any aggregate mismatch fails the pass outright and
// sampling is skipped, since per-user probes add nothing once totals
// disagree. It only detects drift, repair belongs to the backfill.
type ConsistencyVerifier struct {
	primary    RelationshipStore
	replica    GraphReplica
	runs       social.RunsRepo
	metrics    *observability.Metrics
	log        *logger.Logger
	sampleSize int
}

func NewConsistencyVerifier(primary RelationshipStore, replica GraphReplica, runs social.RunsRepo, metrics *observability.Metrics, baseLog *logger.Logger, sampleSize int) *ConsistencyVerifier {
	if sampleSize <= 0 {
		sampleSize = defaultVerifySample
	}
	return &ConsistencyVerifier{
		primary:    primary,
		replica:    replica,
		runs:       runs,
		metrics:    metrics,
		log:        baseLog.With("service", "verifier"),
		sampleSize: sampleSize,
	}
}

// Run executes one verification pass and records it. The error return is for
// infrastructure failures only; detected drift lands in the report with
// Passed=false and a nil error.
func (v *ConsistencyVerifier) Run(ctx context.Context) (*VerificationReport, error) {
	run := &types.VerificationRun{Status: types.RunStatusRunning, SampleSize: v.sampleSize, StartedAt: time.Now().UTC()}
	if v.runs != nil {
		if err := v.runs.CreateVerificationRun(ctx, run); err != nil {
			return nil, err
		}
	}

	report, err := v.verify(ctx)
	if err != nil {
		run.Status = types.RunStatusFailed
		v.log.Error("verification pass errored", "run_id", run.ID, "error", err)
	} else {
		run.Status = types.RunStatusSucceeded
		run.Passed = report.Passed
		if len(report.Mismatches) > 0 {
			if b, mErr := json.Marshal(report.Mismatches); mErr == nil {
				run.Mismatch = datatypes.JSON(b)
			}
		}
		v.metrics.IncVerifierRun(report.Passed)
		if report.Passed {
			v.log.Info("verification passed", "run_id", run.ID, "sample_size", v.sampleSize)
		} else {
			v.log.Warn("verification found drift", "run_id", run.ID, "mismatches", len(report.Mismatches))
		}
	}
	if v.runs != nil {
		if fErr := v.runs.FinishVerificationRun(ctx, run); fErr != nil {
			v.log.Error("verification run record update failed", "run_id", run.ID, "error", fErr)
		}
	}
	return report, err
}

func (v *ConsistencyVerifier) verify(ctx context.Context) (*VerificationReport, error) {
	report := &VerificationReport{Passed: true, SampleSize: v.sampleSize}

	aggMismatches, err := v.checkAggregates(ctx)
	if err != nil {
		return nil, err
	}
	if len(aggMismatches) > 0 {
		report.Passed = false
		report.Mismatches = aggMismatches
		return report, nil
	}

	sampleMismatches, err := v.checkSamples(ctx)
	if err != nil {
		return nil, err
	}
	if len(sampleMismatches) > 0 {
		report.Passed = false
		report.Mismatches = sampleMismatches
	}
	return report, nil
}

func (v *ConsistencyVerifier) checkAggregates(ctx context.Context) ([]Mismatch, error) {
	var out []Mismatch

	pUsers, err := v.primary.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	rNodes, err := v.replica.CountNodes(ctx)
	if err != nil {
		return nil, err
	}
	if pUsers != rNodes {
		out = append(out, Mismatch{Kind: "node_count", Primary: pUsers, Replica: rNodes})
	}

	for _, et := range types.EdgeTypes() {
		pEdges, err := v.primary.CountEdges(ctx, et)
		if err != nil {
			return nil, err
		}
		rEdges, err := v.replica.CountEdges(ctx, et)
		if err != nil {
			return nil, err
		}
		if pEdges != rEdges {
			out = append(out, Mismatch{Kind: "edge_count", EdgeType: et, Primary: pEdges, Replica: rEdges})
		}
	}
	return out, nil
}

// checkSamples compares per-user neighbor counts for a random sample of
// users: both directions for follows, the outgoing side for mutes and
// blocks, matching the aggregate-stats shape consumers read.
func (v *ConsistencyVerifier) checkSamples(ctx context.Context) ([]Mismatch, error) {
	ids, err := v.primary.SampleUserIDs(ctx, v.sampleSize)
	if err != nil {
		return nil, err
	}

	probes := []struct {
		et  types.EdgeType
		dir types.Direction
	}{
		{types.EdgeFollow, types.DirIn},
		{types.EdgeFollow, types.DirOut},
		{types.EdgeMute, types.DirOut},
		{types.EdgeBlock, types.DirOut},
	}

	var out []Mismatch
	for _, id := range ids {
		for _, p := range probes {
			pCount, err := v.primary.NeighborCount(ctx, p.et, p.dir, id)
			if err != nil {
				return nil, err
			}
			rCount, err := v.replica.NeighborCount(ctx, p.et, p.dir, id)
			if err != nil {
				return nil, err
			}
			if pCount != rCount {
				out = append(out, Mismatch{
					Kind:     "neighbor_count",
					EdgeType: p.et,
					UserID:   id,
					Primary:  pCount,
					Replica:  rCount,
				})
			}
		}
	}
	return out, nil
}
