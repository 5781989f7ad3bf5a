package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/novasocial/graph-backend/internal/domain"
	apperrors "github.com/novasocial/graph-backend/internal/pkg/errors"
	"github.com/novasocial/graph-backend/internal/platform/logger"
)

// RunsRepo persists backfill and verification run records. These records are
// the operator-facing result sink; the verifier itself never acts on them.
type RunsRepo interface {
	CreateBackfillRun(ctx context.Context, row *types.BackfillRun) error
	FinishBackfillRun(ctx context.Context, row *types.BackfillRun) error
	CreateVerificationRun(ctx context.Context, row *types.VerificationRun) error
	FinishVerificationRun(ctx context.Context, row *types.VerificationRun) error
	LatestVerificationRun(ctx context.Context) (*types.VerificationRun, error)
}

type runsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunsRepo(db *gorm.DB, baseLog *logger.Logger) RunsRepo {
	return &runsRepo{db: db, log: baseLog.With("repo", "RunsRepo")}
}

func (r *runsRepo) CreateBackfillRun(ctx context.Context, row *types.BackfillRun) error {
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.StartedAt.IsZero() {
		row.StartedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *runsRepo) FinishBackfillRun(ctx context.Context, row *types.BackfillRun) error {
	if row == nil || row.ID == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	row.FinishedAt = &now
	return r.db.WithContext(ctx).Save(row).Error
}

func (r *runsRepo) CreateVerificationRun(ctx context.Context, row *types.VerificationRun) error {
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.StartedAt.IsZero() {
		row.StartedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *runsRepo) FinishVerificationRun(ctx context.Context, row *types.VerificationRun) error {
	if row == nil || row.ID == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	row.FinishedAt = &now
	return r.db.WithContext(ctx).Save(row).Error
}

func (r *runsRepo) LatestVerificationRun(ctx context.Context) (*types.VerificationRun, error) {
	var row types.VerificationRun
	err := r.db.WithContext(ctx).Order("started_at DESC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no verification run recorded: %w", apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &row, nil
}
