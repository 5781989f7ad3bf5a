package domain

import (
	"time"

	"github.com/google/uuid"
)

// EdgeType enumerates the relationship kinds carried by both stores.
type EdgeType string

const (
	EdgeFollow EdgeType = "follow"
	EdgeMute   EdgeType = "mute"
	EdgeBlock  EdgeType = "block"
)

func (t EdgeType) Valid() bool {
	switch t {
	case EdgeFollow, EdgeMute, EdgeBlock:
		return true
	default:
		return false
	}
}

func EdgeTypes() []EdgeType {
	return []EdgeType{EdgeFollow, EdgeMute, EdgeBlock}
}

// Direction selects which end of an edge a neighbor query anchors on.
type Direction string

const (
	// DirOut lists objects of edges whose subject is the anchor (e.g. following).
	DirOut Direction = "out"
	// DirIn lists subjects of edges whose object is the anchor (e.g. followers).
	DirIn Direction = "in"
)

// Edge is the store-neutral view of a relationship row. CreatedAt is immutable
// once written and must survive replica backfills unchanged.
type Edge struct {
	SubjectID uuid.UUID `json:"subject_id"`
	ObjectID  uuid.UUID `json:"object_id"`
	Type      EdgeType  `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// UserNode is the reduced user projection mirrored into the graph replica.
type UserNode struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// NeighborPage is the common shape of paginated traversal results.
type NeighborPage struct {
	IDs        []uuid.UUID `json:"ids"`
	TotalCount int64       `json:"total_count"`
	HasMore    bool        `json:"has_more"`
}

// GraphStats is the aggregate per-user view served replica-only.
type GraphStats struct {
	UserID         uuid.UUID `json:"user_id"`
	FollowersCount int64     `json:"followers_count"`
	FollowingCount int64     `json:"following_count"`
	MutedCount     int64     `json:"muted_count"`
	BlockedCount   int64     `json:"blocked_count"`
}

// Cursor is a keyset position into a created_at-ordered stream. The zero value
// starts from the beginning.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func (c Cursor) IsZero() bool {
	return c.CreatedAt.IsZero() && c.ID == uuid.Nil
}

// EdgeCursor is the keyset position into a created_at-ordered edge stream.
// Edges have a composite identity, so both endpoints participate in the key.
type EdgeCursor struct {
	CreatedAt time.Time
	SubjectID uuid.UUID
	ObjectID  uuid.UUID
}

func (c EdgeCursor) IsZero() bool {
	return c.CreatedAt.IsZero() && c.SubjectID == uuid.Nil && c.ObjectID == uuid.Nil
}
