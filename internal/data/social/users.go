package social

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	types "github.com/novasocial/graph-backend/internal/domain"
)

// ensureUserExists inserts a placeholder row so edge writes never hit a
// missing-user constraint when relationship events outrun user sync.
func (s *Store) ensureUserExists(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&types.User{ID: userID, Username: userID.String(), CreatedAt: now, UpdatedAt: now}).Error
}

// UpsertUser applies a user projection from the identity feed. The RETURNING
// clause hands back the stored created_at, so an upsert over an existing row
// reports the original timestamp rather than the write time.
func (s *Store) UpsertUser(ctx context.Context, userID uuid.UUID, username string) (types.UserNode, error) {
	now := time.Now().UTC()
	row := types.User{ID: userID, Username: username, CreatedAt: now, UpdatedAt: now}
	err := s.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"username", "updated_at"}),
			},
			clause.Returning{Columns: []clause.Column{{Name: "created_at"}}},
		).
		Create(&row).Error
	return types.UserNode{ID: userID, Username: username, CreatedAt: row.CreatedAt}, err
}

// ListUsers streams non-deleted users in stable (created_at, id) order,
// continuing after the given cursor.
func (s *Store) ListUsers(ctx context.Context, after types.Cursor, limit int) ([]types.UserNode, error) {
	if limit <= 0 {
		limit = 1000
	}
	q := s.db.WithContext(ctx).
		Model(&types.User{}).
		Select("id", "username", "created_at").
		Order("created_at, id").
		Limit(limit)
	if !after.IsZero() {
		q = q.Where("(created_at, id) > (?, ?)", after.CreatedAt, after.ID)
	}

	var rows []types.User
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	nodes := make([]types.UserNode, 0, len(rows))
	for _, r := range rows {
		nodes = append(nodes, types.UserNode{ID: r.ID, Username: r.Username, CreatedAt: r.CreatedAt})
	}
	return nodes, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&types.User{}).Count(&total).Error
	return total, err
}

// SampleUserIDs draws n random non-deleted users for the verifier's spot check.
func (s *Store) SampleUserIDs(ctx context.Context, n int) ([]uuid.UUID, error) {
	if n <= 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Raw("SELECT id FROM users WHERE deleted_at IS NULL ORDER BY RANDOM() LIMIT ?", n).
		Scan(&ids).Error
	return ids, err
}
