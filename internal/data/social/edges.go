package social

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	types "github.com/novasocial/graph-backend/internal/domain"
	apperrors "github.com/novasocial/graph-backend/internal/pkg/errors"
)

const maxPageLimit = 10000

// CreateEdge inserts the edge if absent. The conflict clause makes duplicate
// writes for the same ordered pair a no-op, which is the uniqueness invariant
// the replica relies on.
func (s *Store) CreateEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) (types.Edge, error) {
	edge := types.Edge{SubjectID: subject, ObjectID: object, Type: et}
	if !et.Valid() {
		return edge, fmt.Errorf("unknown edge type %q: %w", et, apperrors.ErrInvalidArgument)
	}
	if subject == object {
		return edge, fmt.Errorf("self-referential %s edge rejected: %w", et, apperrors.ErrInvalidArgument)
	}
	if err := s.ensureUserExists(ctx, subject); err != nil {
		return edge, err
	}
	if err := s.ensureUserExists(ctx, object); err != nil {
		return edge, err
	}

	now := time.Now().UTC()
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true})
	var err error
	switch et {
	case types.EdgeFollow:
		err = tx.Create(&types.Follow{FollowerID: subject, FollowingID: object, CreatedAt: now}).Error
	case types.EdgeMute:
		err = tx.Create(&types.Mute{MuterID: subject, MutedID: object, CreatedAt: now}).Error
	default:
		err = tx.Create(&types.Block{BlockerID: subject, BlockedID: object, CreatedAt: now}).Error
	}
	if err != nil {
		return edge, err
	}

	// Read back the row's timestamp: on conflict the insert is a no-op and the
	// pair keeps its original created_at, which is the value the replica must
	// carry. Returning `now` here would let a duplicate write rewrite history.
	t := edgeTables[et]
	if err := s.db.WithContext(ctx).
		Raw(fmt.Sprintf("SELECT created_at FROM %s WHERE %s = ? AND %s = ?", t.name, t.subjectCol, t.objectCol),
			subject, object).
		Scan(&edge.CreatedAt).Error; err != nil {
		return edge, err
	}
	return edge, nil
}

func (s *Store) DeleteEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) error {
	t, ok := edgeTables[et]
	if !ok {
		return fmt.Errorf("unknown edge type %q", et)
	}
	return s.db.WithContext(ctx).
		Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?", t.name, t.subjectCol, t.objectCol),
			subject, object).Error
}

func (s *Store) EdgeExists(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) (bool, error) {
	t, ok := edgeTables[et]
	if !ok {
		return false, fmt.Errorf("unknown edge type %q", et)
	}
	var exists bool
	err := s.db.WithContext(ctx).
		Raw(fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s = ? AND %s = ?)", t.name, t.subjectCol, t.objectCol),
			subject, object).
		Scan(&exists).Error
	return exists, err
}

// ListNeighbors pages over one side of an edge table, newest first, with the
// total count of matching rows. Under concurrent writes the total may trail
// the page.
func (s *Store) ListNeighbors(ctx context.Context, et types.EdgeType, dir types.Direction, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error) {
	t, ok := edgeTables[et]
	if !ok {
		return types.NeighborPage{}, fmt.Errorf("unknown edge type %q", et)
	}
	anchorCol, otherCol := t.subjectCol, t.objectCol
	if dir == types.DirIn {
		anchorCol, otherCol = t.objectCol, t.subjectCol
	}
	if limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.db.WithContext(ctx).
		Raw(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", t.name, anchorCol), anchor).
		Scan(&total).Error; err != nil {
		return types.NeighborPage{}, err
	}

	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).
		Raw(fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY created_at DESC LIMIT ? OFFSET ?",
			otherCol, t.name, anchorCol), anchor, limit, offset).
		Scan(&ids).Error; err != nil {
		return types.NeighborPage{}, err
	}

	return types.NeighborPage{
		IDs:        ids,
		TotalCount: total,
		HasMore:    int64(offset+limit) < total,
	}, nil
}

// MutualFollowers lists users who follow the anchor and are followed back.
func (s *Store) MutualFollowers(ctx context.Context, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error) {
	if limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.db.WithContext(ctx).Raw(`
SELECT COUNT(*)
FROM follows f1
INNER JOIN follows f2 ON f1.follower_id = f2.following_id AND f1.following_id = f2.follower_id
WHERE f1.following_id = ?`, anchor).Scan(&total).Error; err != nil {
		return types.NeighborPage{}, err
	}

	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).Raw(`
SELECT f1.follower_id
FROM follows f1
INNER JOIN follows f2 ON f1.follower_id = f2.following_id AND f1.following_id = f2.follower_id
WHERE f1.following_id = ?
ORDER BY f1.created_at DESC
LIMIT ? OFFSET ?`, anchor, limit, offset).Scan(&ids).Error; err != nil {
		return types.NeighborPage{}, err
	}

	return types.NeighborPage{
		IDs:        ids,
		TotalCount: total,
		HasMore:    int64(offset+limit) < total,
	}, nil
}

// ListEdges streams edges of one type in stable (created_at, subject, object)
// order, continuing after the given cursor. Used by backfill, which needs the
// per-type ordering guarantee even while live writes continue.
func (s *Store) ListEdges(ctx context.Context, et types.EdgeType, after types.EdgeCursor, limit int) ([]types.Edge, error) {
	t, ok := edgeTables[et]
	if !ok {
		return nil, fmt.Errorf("unknown edge type %q", et)
	}
	if limit <= 0 {
		limit = 1000
	}

	q := fmt.Sprintf(`SELECT %s AS subject_id, %s AS object_id, created_at FROM %s`, t.subjectCol, t.objectCol, t.name)
	args := []interface{}{}
	if !after.IsZero() {
		q += fmt.Sprintf(" WHERE (created_at, %s, %s) > (?, ?, ?)", t.subjectCol, t.objectCol)
		args = append(args, after.CreatedAt, after.SubjectID, after.ObjectID)
	}
	q += fmt.Sprintf(" ORDER BY created_at, %s, %s LIMIT ?", t.subjectCol, t.objectCol)
	args = append(args, limit)

	var rows []struct {
		SubjectID uuid.UUID
		ObjectID  uuid.UUID
		CreatedAt time.Time
	}
	if err := s.db.WithContext(ctx).Raw(q, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	edges := make([]types.Edge, 0, len(rows))
	for _, r := range rows {
		edges = append(edges, types.Edge{
			SubjectID: r.SubjectID,
			ObjectID:  r.ObjectID,
			Type:      et,
			CreatedAt: r.CreatedAt,
		})
	}
	return edges, nil
}

func (s *Store) CountEdges(ctx context.Context, et types.EdgeType) (int64, error) {
	t, ok := edgeTables[et]
	if !ok {
		return 0, fmt.Errorf("unknown edge type %q", et)
	}
	var total int64
	err := s.db.WithContext(ctx).
		Raw(fmt.Sprintf("SELECT COUNT(*) FROM %s", t.name)).
		Scan(&total).Error
	return total, err
}

func (s *Store) NeighborCount(ctx context.Context, et types.EdgeType, dir types.Direction, anchor uuid.UUID) (int64, error) {
	t, ok := edgeTables[et]
	if !ok {
		return 0, fmt.Errorf("unknown edge type %q", et)
	}
	anchorCol := t.subjectCol
	if dir == types.DirIn {
		anchorCol = t.objectCol
	}
	var total int64
	err := s.db.WithContext(ctx).
		Raw(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", t.name, anchorCol), anchor).
		Scan(&total).Error
	return total, err
}
