package social

import (
	"context"

	"gorm.io/gorm"

	types "github.com/novasocial/graph-backend/internal/domain"
	"github.com/novasocial/graph-backend/internal/platform/logger"
)

// Store is the relational source of truth for the social graph. Every edge
// mutation lands here first; the neo4j replica is derived from these tables.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStore(db *gorm.DB, baseLog *logger.Logger) *Store {
	return &Store{db: db, log: baseLog.With("store", "SocialStore")}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.WithContext(ctx).Exec("SELECT 1").Error
}

// edgeTable maps an EdgeType to its backing table. All three tables share the
// (subject, object, created_at) shape; only names differ.
type edgeTable struct {
	name       string
	subjectCol string
	objectCol  string
}

var edgeTables = map[types.EdgeType]edgeTable{
	types.EdgeFollow: {name: "follows", subjectCol: "follower_id", objectCol: "following_id"},
	types.EdgeMute:   {name: "mutes", subjectCol: "muter_id", objectCol: "muted_id"},
	types.EdgeBlock:  {name: "blocks", subjectCol: "blocker_id", objectCol: "blocked_id"},
}
