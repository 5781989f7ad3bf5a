package graph

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/novasocial/graph-backend/internal/domain"
	"github.com/novasocial/graph-backend/internal/platform/logger"
	"github.com/novasocial/graph-backend/internal/platform/neo4jdb"
)

func testReplica(t *testing.T) *Replica {
	t.Helper()
	uri := os.Getenv("TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("TEST_NEO4J_URI not set")
	}
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	client, err := neo4jdb.New(neo4jdb.Config{
		URI:      uri,
		User:     os.Getenv("TEST_NEO4J_USER"),
		Password: os.Getenv("TEST_NEO4J_PASSWORD"),
	}, log)
	if err != nil {
		t.Fatalf("connect neo4j: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(ctx)
	})
	r := NewReplica(client, log)
	if err := r.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return r
}

func seedEdge(t *testing.T, r *Replica, et types.EdgeType) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	nodes := []types.UserNode{
		{ID: a, Username: "a", CreatedAt: time.Now().UTC()},
		{ID: b, Username: "b", CreatedAt: time.Now().UTC()},
	}
	if err := r.UpsertNodes(ctx, nodes); err != nil {
		t.Fatalf("seed nodes: %v", err)
	}
	if err := r.UpsertEdge(ctx, types.Edge{SubjectID: a, ObjectID: b, Type: et, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("seed edge: %v", err)
	}
	return a, b
}

func followCreatedAt(t *testing.T, r *Replica, a, b uuid.UUID) string {
	t.Helper()
	ctx := context.Background()
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.Run(ctx, `
MATCH (:User {id: $a})-[rel:FOLLOWS]->(:User {id: $b})
RETURN rel.created_at AS created_at
`, map[string]any{"a": a.String(), "b": b.String()})
	if err != nil {
		t.Fatalf("read created_at: %v", err)
	}
	record, err := res.Single(ctx)
	if err != nil {
		t.Fatalf("read created_at: %v", err)
	}
	v, _ := record.Get("created_at")
	s, _ := v.(string)
	return s
}

func TestUpsertEdge_MergeIsIdempotent(t *testing.T) {
	r := testReplica(t)
	ctx := context.Background()
	a, b := seedEdge(t, r, types.EdgeFollow)

	if err := r.UpsertEdge(ctx, types.Edge{SubjectID: a, ObjectID: b, Type: types.EdgeFollow, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	n, err := r.NeighborCount(ctx, types.EdgeFollow, types.DirOut, a)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("neighbor count = %d after re-merge, want 1", n)
	}
}

func TestUpsertEdge_RewriteKeepsCreatedAt(t *testing.T) {
	r := testReplica(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	if err := r.UpsertNodes(ctx, []types.UserNode{
		{ID: a, Username: "a", CreatedAt: time.Now().UTC()},
		{ID: b, Username: "b", CreatedAt: time.Now().UTC()},
	}); err != nil {
		t.Fatalf("seed nodes: %v", err)
	}

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := r.UpsertEdge(ctx, types.Edge{SubjectID: a, ObjectID: b, Type: types.EdgeFollow, CreatedAt: t0}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := r.UpsertEdge(ctx, types.Edge{SubjectID: a, ObjectID: b, Type: types.EdgeFollow, CreatedAt: t0.Add(time.Hour)}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	want := t0.Format(time.RFC3339Nano)
	if got := followCreatedAt(t, r, a, b); got != want {
		t.Fatalf("created_at = %q after rewrite, want %q", got, want)
	}
}

func TestUpsertEdges_BatchRestoresCreatedAt(t *testing.T) {
	r := testReplica(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	if err := r.UpsertNodes(ctx, []types.UserNode{
		{ID: a, Username: "a", CreatedAt: time.Now().UTC()},
		{ID: b, Username: "b", CreatedAt: time.Now().UTC()},
	}); err != nil {
		t.Fatalf("seed nodes: %v", err)
	}

	drifted := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	stored := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := r.UpsertEdge(ctx, types.Edge{SubjectID: a, ObjectID: b, Type: types.EdgeFollow, CreatedAt: drifted}); err != nil {
		t.Fatalf("seed edge: %v", err)
	}
	// The batch path is the backfill's repair mechanism, so its value wins.
	if err := r.UpsertEdges(ctx, []types.Edge{{SubjectID: a, ObjectID: b, Type: types.EdgeFollow, CreatedAt: stored}}); err != nil {
		t.Fatalf("batch upsert: %v", err)
	}

	want := stored.Format(time.RFC3339Nano)
	if got := followCreatedAt(t, r, a, b); got != want {
		t.Fatalf("created_at = %q after batch, want %q", got, want)
	}
}

func TestDeleteEdge_RemovesOnlyThatEdge(t *testing.T) {
	r := testReplica(t)
	ctx := context.Background()
	a, b := seedEdge(t, r, types.EdgeMute)

	if err := r.DeleteEdge(ctx, types.EdgeMute, a, b); err != nil {
		t.Fatalf("delete: %v", err)
	}
	exists, err := r.EdgeExists(ctx, types.EdgeMute, a, b)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatalf("edge still present after delete")
	}
	// delete again: no-op
	if err := r.DeleteEdge(ctx, types.EdgeMute, a, b); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}

func TestGetNeighbors_DirectionsAreDistinct(t *testing.T) {
	r := testReplica(t)
	ctx := context.Background()
	a, b := seedEdge(t, r, types.EdgeFollow)

	out, err := r.GetNeighbors(ctx, types.EdgeFollow, types.DirOut, a, 10, 0)
	if err != nil {
		t.Fatalf("out: %v", err)
	}
	if out.TotalCount != 1 || out.IDs[0] != b {
		t.Fatalf("out neighbors = %+v, want just %s", out, b)
	}

	in, err := r.GetNeighbors(ctx, types.EdgeFollow, types.DirIn, a, 10, 0)
	if err != nil {
		t.Fatalf("in: %v", err)
	}
	if in.TotalCount != 0 {
		t.Fatalf("in neighbors = %d, want 0", in.TotalCount)
	}
}

func TestBatchEdgeExists_MixedTargets(t *testing.T) {
	r := testReplica(t)
	ctx := context.Background()
	a, b := seedEdge(t, r, types.EdgeFollow)
	stranger := uuid.New()

	out, err := r.BatchEdgeExists(ctx, types.EdgeFollow, a, []uuid.UUID{b, stranger})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if !out[b.String()] {
		t.Fatalf("known edge reported missing")
	}
	if out[stranger.String()] {
		t.Fatalf("absent edge reported present")
	}
}

func TestAggregateStats_CountsAllEdgeKinds(t *testing.T) {
	r := testReplica(t)
	ctx := context.Background()
	a, _ := seedEdge(t, r, types.EdgeFollow)
	c := uuid.New()
	if err := r.UpsertNode(ctx, types.UserNode{ID: c, Username: "c", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("node: %v", err)
	}
	if err := r.UpsertEdge(ctx, types.Edge{SubjectID: a, ObjectID: c, Type: types.EdgeBlock, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("block edge: %v", err)
	}

	stats, err := r.AggregateStats(ctx, a)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.FollowingCount != 1 || stats.BlockedCount != 1 {
		t.Fatalf("stats = %+v, want following=1 blocked=1", stats)
	}
}

func TestAggregateStats_UnknownUserIsEmptyNotError(t *testing.T) {
	r := testReplica(t)

	stats, err := r.AggregateStats(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("stats for unknown user: %v", err)
	}
	if stats.FollowersCount != 0 || stats.FollowingCount != 0 || stats.MutedCount != 0 || stats.BlockedCount != 0 {
		t.Fatalf("stats = %+v, want all-zero", stats)
	}
}
