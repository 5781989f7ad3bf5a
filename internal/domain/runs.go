package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// BackfillRun records one replica backfill pass for operators.
type BackfillRun struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Status         string         `gorm:"type:text;not null" json:"status"`
	UsersMigrated  int64          `gorm:"not null;default:0" json:"users_migrated"`
	FollowsMigrated int64         `gorm:"not null;default:0" json:"follows_migrated"`
	MutesMigrated  int64          `gorm:"not null;default:0" json:"mutes_migrated"`
	BlocksMigrated int64          `gorm:"not null;default:0" json:"blocks_migrated"`
	Error          string         `gorm:"type:text" json:"error,omitempty"`
	StartedAt      time.Time      `gorm:"not null;default:now();index" json:"started_at"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
	Detail         datatypes.JSON `gorm:"type:jsonb" json:"detail,omitempty"`
}

func (BackfillRun) TableName() string { return "backfill_runs" }

// VerificationRun records one consistency-verifier pass (pass/fail plus the
// mismatch that stopped it, if any). Drift is only ever reported here, never
// repaired.
type VerificationRun struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Status     string         `gorm:"type:text;not null" json:"status"`
	Passed     bool           `gorm:"not null;default:false" json:"passed"`
	SampleSize int            `gorm:"not null;default:0" json:"sample_size"`
	Mismatch   datatypes.JSON `gorm:"type:jsonb" json:"mismatch,omitempty"`
	StartedAt  time.Time      `gorm:"not null;default:now();index" json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

func (VerificationRun) TableName() string { return "verification_runs" }
