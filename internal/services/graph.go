package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	types "github.com/novasocial/graph-backend/internal/domain"
)

// WriteMode selects how much a failed replica write is allowed to hurt.
type WriteMode int

const (
	// WriteModeStrict rolls the primary back when the replica write fails and
	// surfaces the error. Both stores stay consistent or the call fails.
	WriteModeStrict WriteMode = iota
	// WriteModeLenient keeps the primary write, logs the replica failure and
	// reports success. Drift is accepted until the next backfill.
	WriteModeLenient
)

// ParseWriteMode defaults to lenient: availability is the safer default and
// drift is recoverable via backfill.
func ParseWriteMode(raw string) (WriteMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "strict":
		return WriteModeStrict, nil
	case "", "lenient":
		return WriteModeLenient, nil
	default:
		return WriteModeLenient, fmt.Errorf("unknown write mode %q (want strict or lenient)", raw)
	}
}

func (m WriteMode) String() string {
	if m == WriteModeLenient {
		return "lenient"
	}
	return "strict"
}

// RelationshipStore is the relational source of truth for users and edges.
type RelationshipStore interface {
	UpsertUser(ctx context.Context, userID uuid.UUID, username string) (types.UserNode, error)
	CreateEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) (types.Edge, error)
	DeleteEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) error
	EdgeExists(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) (bool, error)
	ListNeighbors(ctx context.Context, et types.EdgeType, dir types.Direction, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error)
	MutualFollowers(ctx context.Context, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error)
	ListUsers(ctx context.Context, after types.Cursor, limit int) ([]types.UserNode, error)
	ListEdges(ctx context.Context, et types.EdgeType, after types.EdgeCursor, limit int) ([]types.Edge, error)
	CountUsers(ctx context.Context) (int64, error)
	CountEdges(ctx context.Context, et types.EdgeType) (int64, error)
	NeighborCount(ctx context.Context, et types.EdgeType, dir types.Direction, anchor uuid.UUID) (int64, error)
	SampleUserIDs(ctx context.Context, n int) ([]uuid.UUID, error)
	HealthCheck(ctx context.Context) error
}

// GraphReplica is the graph-shaped read replica.
type GraphReplica interface {
	UpsertNode(ctx context.Context, node types.UserNode) error
	UpsertNodes(ctx context.Context, nodes []types.UserNode) error
	UpsertEdge(ctx context.Context, edge types.Edge) error
	UpsertEdges(ctx context.Context, edges []types.Edge) error
	DeleteEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) error
	EdgeExists(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) (bool, error)
	GetNeighbors(ctx context.Context, et types.EdgeType, dir types.Direction, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error)
	MutualFollowers(ctx context.Context, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error)
	BatchEdgeExists(ctx context.Context, et types.EdgeType, subject uuid.UUID, targets []uuid.UUID) (map[string]bool, error)
	AggregateStats(ctx context.Context, userID uuid.UUID) (types.GraphStats, error)
	CountNodes(ctx context.Context) (int64, error)
	CountEdges(ctx context.Context, et types.EdgeType) (int64, error)
	NeighborCount(ctx context.Context, et types.EdgeType, dir types.Direction, anchor uuid.UUID) (int64, error)
	EnsureSchema(ctx context.Context) error
	HealthCheck(ctx context.Context) error
}

// GraphService is the surface handlers and other services consume. Both the
// dual-write and the primary-only variant implement it, so callers never
// branch on deployment shape.
type GraphService interface {
	UpsertUser(ctx context.Context, userID uuid.UUID, username string) error
	CreateEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) error
	DeleteEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) error
	EdgeExists(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) (bool, error)
	ListNeighbors(ctx context.Context, et types.EdgeType, dir types.Direction, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error)
	MutualFollowers(ctx context.Context, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error)
	BatchEdgeExists(ctx context.Context, et types.EdgeType, subject uuid.UUID, targets []uuid.UUID) (map[string]bool, error)
	AggregateStats(ctx context.Context, userID uuid.UUID) (types.GraphStats, error)
	HealthCheck(ctx context.Context) error
}
