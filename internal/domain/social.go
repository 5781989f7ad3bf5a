package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User mirrors the identity-service projection owned by the relational store.
// The graph replica carries a reduced copy (id, name, created_at).
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Username  string         `gorm:"type:text;not null" json:"username"`
	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "users" }

// Follow is a directed follower -> followee edge. The composite unique index is
// the authoritative at-most-one-edge constraint for the pair.
type Follow struct {
	FollowerID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"follower_id"`
	FollowingID uuid.UUID `gorm:"type:uuid;primaryKey" json:"following_id"`
	CreatedAt   time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (Follow) TableName() string { return "follows" }

type Mute struct {
	MuterID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"muter_id"`
	MutedID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"muted_id"`
	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (Mute) TableName() string { return "mutes" }

type Block struct {
	BlockerID uuid.UUID `gorm:"type:uuid;primaryKey" json:"blocker_id"`
	BlockedID uuid.UUID `gorm:"type:uuid;primaryKey" json:"blocked_id"`
	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (Block) TableName() string { return "blocks" }
