package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/novasocial/graph-backend/internal/domain"
	"github.com/novasocial/graph-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func edgeKey(subject, object uuid.UUID) string {
	return subject.String() + "|" + object.String()
}

// fakePrimary is an in-memory RelationshipStore with per-method error
// injection.
type fakePrimary struct {
	mu    sync.Mutex
	users []types.UserNode
	edges map[types.EdgeType]map[string]types.Edge

	upsertUserErr error
	createEdgeErr error
	deleteEdgeErr error
	healthErr     error

	edgeExistsCalls    int
	listNeighborsCalls int
	mutualCalls        int
	neighborCountCalls int
}

func newFakePrimary() *fakePrimary {
	return &fakePrimary{edges: map[types.EdgeType]map[string]types.Edge{}}
}

func (f *fakePrimary) addUser(node types.UserNode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, node)
}

func (f *fakePrimary) addEdge(e types.Edge) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.edges[e.Type] == nil {
		f.edges[e.Type] = map[string]types.Edge{}
	}
	f.edges[e.Type][edgeKey(e.SubjectID, e.ObjectID)] = e
}

func (f *fakePrimary) hasEdge(et types.EdgeType, subject, object uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.edges[et][edgeKey(subject, object)]
	return ok
}

func (f *fakePrimary) UpsertUser(ctx context.Context, userID uuid.UUID, username string) (types.UserNode, error) {
	if f.upsertUserErr != nil {
		return types.UserNode{}, f.upsertUserErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, u := range f.users {
		if u.ID == userID {
			f.users[i].Username = username
			return f.users[i], nil
		}
	}
	node := types.UserNode{ID: userID, Username: username, CreatedAt: time.Now().UTC()}
	f.users = append(f.users, node)
	return node, nil
}

// CreateEdge matches the store's conflict semantics: a duplicate pair is a
// no-op that reports the stored timestamp, never a fresh one.
func (f *fakePrimary) CreateEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) (types.Edge, error) {
	edge := types.Edge{SubjectID: subject, ObjectID: object, Type: et, CreatedAt: time.Now().UTC()}
	if f.createEdgeErr != nil {
		return edge, f.createEdgeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.edges[et] == nil {
		f.edges[et] = map[string]types.Edge{}
	}
	if existing, ok := f.edges[et][edgeKey(subject, object)]; ok {
		return existing, nil
	}
	f.edges[et][edgeKey(subject, object)] = edge
	return edge, nil
}

func (f *fakePrimary) DeleteEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) error {
	if f.deleteEdgeErr != nil {
		return f.deleteEdgeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.edges[et], edgeKey(subject, object))
	return nil
}

func (f *fakePrimary) EdgeExists(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) (bool, error) {
	f.mu.Lock()
	f.edgeExistsCalls++
	f.mu.Unlock()
	return f.hasEdge(et, subject, object), nil
}

func (f *fakePrimary) ListNeighbors(ctx context.Context, et types.EdgeType, dir types.Direction, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listNeighborsCalls++
	var ids []uuid.UUID
	for _, e := range f.edges[et] {
		if dir == types.DirOut && e.SubjectID == anchor {
			ids = append(ids, e.ObjectID)
		}
		if dir == types.DirIn && e.ObjectID == anchor {
			ids = append(ids, e.SubjectID)
		}
	}
	return types.NeighborPage{IDs: ids, TotalCount: int64(len(ids))}, nil
}

func (f *fakePrimary) MutualFollowers(ctx context.Context, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutualCalls++
	var ids []uuid.UUID
	for _, e := range f.edges[types.EdgeFollow] {
		if e.SubjectID != anchor {
			continue
		}
		if _, back := f.edges[types.EdgeFollow][edgeKey(e.ObjectID, anchor)]; back {
			ids = append(ids, e.ObjectID)
		}
	}
	return types.NeighborPage{IDs: ids, TotalCount: int64(len(ids))}, nil
}

func (f *fakePrimary) ListUsers(ctx context.Context, after types.Cursor, limit int) ([]types.UserNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sorted := make([]types.UserNode, len(f.users))
	copy(sorted, f.users)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})
	var out []types.UserNode
	for _, u := range sorted {
		if !after.IsZero() {
			if u.CreatedAt.Before(after.CreatedAt) {
				continue
			}
			if u.CreatedAt.Equal(after.CreatedAt) && u.ID.String() <= after.ID.String() {
				continue
			}
		}
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePrimary) ListEdges(ctx context.Context, et types.EdgeType, after types.EdgeCursor, limit int) ([]types.Edge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sorted []types.Edge
	for _, e := range f.edges[et] {
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		ki := edgeKey(sorted[i].SubjectID, sorted[i].ObjectID)
		kj := edgeKey(sorted[j].SubjectID, sorted[j].ObjectID)
		return ki < kj
	})
	var out []types.Edge
	for _, e := range sorted {
		if !after.IsZero() {
			if e.CreatedAt.Before(after.CreatedAt) {
				continue
			}
			if e.CreatedAt.Equal(after.CreatedAt) &&
				edgeKey(e.SubjectID, e.ObjectID) <= edgeKey(after.SubjectID, after.ObjectID) {
				continue
			}
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePrimary) CountUsers(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.users)), nil
}

func (f *fakePrimary) CountEdges(ctx context.Context, et types.EdgeType) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.edges[et])), nil
}

func (f *fakePrimary) NeighborCount(ctx context.Context, et types.EdgeType, dir types.Direction, anchor uuid.UUID) (int64, error) {
	f.mu.Lock()
	f.neighborCountCalls++
	f.mu.Unlock()
	return f.countNeighbors(et, dir, anchor)
}

func (f *fakePrimary) countNeighbors(et types.EdgeType, dir types.Direction, anchor uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, e := range f.edges[et] {
		if dir == types.DirOut && e.SubjectID == anchor {
			n++
		}
		if dir == types.DirIn && e.ObjectID == anchor {
			n++
		}
	}
	return n, nil
}

func (f *fakePrimary) SampleUserIDs(ctx context.Context, n int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uuid.UUID
	for _, u := range f.users {
		out = append(out, u.ID)
		if len(out) == n {
			break
		}
	}
	return out, nil
}

func (f *fakePrimary) HealthCheck(ctx context.Context) error { return f.healthErr }

// fakeReplica is an in-memory GraphReplica. seq orders writes so tests can
// assert users land before edges.
type fakeReplica struct {
	mu    sync.Mutex
	nodes map[uuid.UUID]types.UserNode
	edges map[types.EdgeType]map[string]types.Edge

	seq         int
	lastNodeSeq int
	firstEdgeSeq int

	upsertNodeErr error
	upsertEdgeErr error
	deleteEdgeErr error
	readErr       error
	healthErr     error

	upsertEdgeCalls    int
	neighborCountCalls int

	neighborCountOverride map[string]int64 // "et|dir|anchor" -> count
}

func newFakeReplica() *fakeReplica {
	return &fakeReplica{
		nodes: map[uuid.UUID]types.UserNode{},
		edges: map[types.EdgeType]map[string]types.Edge{},
	}
}

func (f *fakeReplica) hasEdge(et types.EdgeType, subject, object uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.edges[et][edgeKey(subject, object)]
	return ok
}

func (f *fakeReplica) edgeCount(et types.EdgeType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edges[et])
}

func (f *fakeReplica) UpsertNode(ctx context.Context, node types.UserNode) error {
	return f.UpsertNodes(ctx, []types.UserNode{node})
}

func (f *fakeReplica) UpsertNodes(ctx context.Context, nodes []types.UserNode) error {
	if f.upsertNodeErr != nil {
		return f.upsertNodeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.lastNodeSeq = f.seq
	for _, n := range nodes {
		f.nodes[n.ID] = n
	}
	return nil
}

// UpsertEdge models the live-path MERGE: an existing relationship keeps its
// created_at. The batch path below overwrites it, as a backfill does.
func (f *fakeReplica) UpsertEdge(ctx context.Context, edge types.Edge) error {
	f.mu.Lock()
	if existing, ok := f.edges[edge.Type][edgeKey(edge.SubjectID, edge.ObjectID)]; ok {
		edge.CreatedAt = existing.CreatedAt
	}
	f.mu.Unlock()
	return f.UpsertEdges(ctx, []types.Edge{edge})
}

func (f *fakeReplica) UpsertEdges(ctx context.Context, edges []types.Edge) error {
	f.mu.Lock()
	f.upsertEdgeCalls++
	f.mu.Unlock()
	if f.upsertEdgeErr != nil {
		return f.upsertEdgeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	if f.firstEdgeSeq == 0 {
		f.firstEdgeSeq = f.seq
	}
	for _, e := range edges {
		if f.edges[e.Type] == nil {
			f.edges[e.Type] = map[string]types.Edge{}
		}
		f.edges[e.Type][edgeKey(e.SubjectID, e.ObjectID)] = e
	}
	return nil
}

func (f *fakeReplica) DeleteEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) error {
	if f.deleteEdgeErr != nil {
		return f.deleteEdgeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.edges[et], edgeKey(subject, object))
	return nil
}

func (f *fakeReplica) EdgeExists(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) (bool, error) {
	if f.readErr != nil {
		return false, f.readErr
	}
	return f.hasEdge(et, subject, object), nil
}

func (f *fakeReplica) GetNeighbors(ctx context.Context, et types.EdgeType, dir types.Direction, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error) {
	if f.readErr != nil {
		return types.NeighborPage{}, f.readErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for _, e := range f.edges[et] {
		if dir == types.DirOut && e.SubjectID == anchor {
			ids = append(ids, e.ObjectID)
		}
		if dir == types.DirIn && e.ObjectID == anchor {
			ids = append(ids, e.SubjectID)
		}
	}
	return types.NeighborPage{IDs: ids, TotalCount: int64(len(ids))}, nil
}

func (f *fakeReplica) MutualFollowers(ctx context.Context, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error) {
	if f.readErr != nil {
		return types.NeighborPage{}, f.readErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for _, e := range f.edges[types.EdgeFollow] {
		if e.SubjectID != anchor {
			continue
		}
		if _, back := f.edges[types.EdgeFollow][edgeKey(e.ObjectID, anchor)]; back {
			ids = append(ids, e.ObjectID)
		}
	}
	return types.NeighborPage{IDs: ids, TotalCount: int64(len(ids))}, nil
}

func (f *fakeReplica) BatchEdgeExists(ctx context.Context, et types.EdgeType, subject uuid.UUID, targets []uuid.UUID) (map[string]bool, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := map[string]bool{}
	for _, tgt := range targets {
		out[tgt.String()] = f.hasEdge(et, subject, tgt)
	}
	return out, nil
}

func (f *fakeReplica) AggregateStats(ctx context.Context, userID uuid.UUID) (types.GraphStats, error) {
	if f.readErr != nil {
		return types.GraphStats{}, f.readErr
	}
	stats := types.GraphStats{UserID: userID}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.edges[types.EdgeFollow] {
		if e.ObjectID == userID {
			stats.FollowersCount++
		}
		if e.SubjectID == userID {
			stats.FollowingCount++
		}
	}
	for _, e := range f.edges[types.EdgeMute] {
		if e.SubjectID == userID {
			stats.MutedCount++
		}
	}
	for _, e := range f.edges[types.EdgeBlock] {
		if e.SubjectID == userID {
			stats.BlockedCount++
		}
	}
	return stats, nil
}

func (f *fakeReplica) CountNodes(ctx context.Context) (int64, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.nodes)), nil
}

func (f *fakeReplica) CountEdges(ctx context.Context, et types.EdgeType) (int64, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	return int64(f.edgeCount(et)), nil
}

func (f *fakeReplica) NeighborCount(ctx context.Context, et types.EdgeType, dir types.Direction, anchor uuid.UUID) (int64, error) {
	f.mu.Lock()
	f.neighborCountCalls++
	override, hasOverride := int64(0), false
	if f.neighborCountOverride != nil {
		override, hasOverride = f.neighborCountOverride[string(et)+"|"+string(dir)+"|"+anchor.String()]
	}
	f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	if hasOverride {
		return override, nil
	}
	page, err := f.GetNeighbors(ctx, et, dir, anchor, 0, 0)
	return page.TotalCount, err
}

func (f *fakeReplica) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeReplica) HealthCheck(ctx context.Context) error { return f.healthErr }
