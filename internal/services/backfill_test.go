package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/novasocial/graph-backend/internal/domain"
)

func seedPrimary(t *testing.T, primary *fakePrimary, userCount int) []uuid.UUID {
	t.Helper()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]uuid.UUID, userCount)
	for i := range ids {
		ids[i] = uuid.New()
		primary.addUser(types.UserNode{
			ID:        ids[i],
			Username:  fmt.Sprintf("user%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return ids
}

func TestBackfill_MigratesUsersAndEdges(t *testing.T) {
	primary := newFakePrimary()
	ids := seedPrimary(t, primary, 5)
	base := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	for i := 1; i < 5; i++ {
		primary.addEdge(types.Edge{SubjectID: ids[0], ObjectID: ids[i], Type: types.EdgeFollow, CreatedAt: base.Add(time.Duration(i) * time.Second)})
	}
	primary.addEdge(types.Edge{SubjectID: ids[1], ObjectID: ids[2], Type: types.EdgeMute, CreatedAt: base})
	primary.addEdge(types.Edge{SubjectID: ids[3], ObjectID: ids[4], Type: types.EdgeBlock, CreatedAt: base})

	replica := newFakeReplica()
	// batch size 2 forces several keyset pages per entity
	job := NewBackfillJob(primary, replica, nil, nil, testLogger(t), 2)

	run, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if run.Status != types.RunStatusSucceeded {
		t.Fatalf("run status = %q, want succeeded", run.Status)
	}
	if run.UsersMigrated != 5 || run.FollowsMigrated != 4 || run.MutesMigrated != 1 || run.BlocksMigrated != 1 {
		t.Fatalf("migrated counts = %d/%d/%d/%d", run.UsersMigrated, run.FollowsMigrated, run.MutesMigrated, run.BlocksMigrated)
	}
	if len(replica.nodes) != 5 {
		t.Fatalf("replica nodes = %d, want 5", len(replica.nodes))
	}
	if replica.edgeCount(types.EdgeFollow) != 4 {
		t.Fatalf("replica follows = %d, want 4", replica.edgeCount(types.EdgeFollow))
	}
}

func TestBackfill_UsersLandBeforeEdges(t *testing.T) {
	primary := newFakePrimary()
	ids := seedPrimary(t, primary, 3)
	primary.addEdge(types.Edge{SubjectID: ids[0], ObjectID: ids[1], Type: types.EdgeFollow, CreatedAt: time.Now().UTC()})

	replica := newFakeReplica()
	job := NewBackfillJob(primary, replica, nil, nil, testLogger(t), 100)

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if replica.firstEdgeSeq == 0 {
		t.Fatalf("no edge writes recorded")
	}
	if replica.lastNodeSeq >= replica.firstEdgeSeq {
		t.Fatalf("node write (seq %d) after first edge write (seq %d)", replica.lastNodeSeq, replica.firstEdgeSeq)
	}
}

func TestBackfill_PreservesEdgeTimestamps(t *testing.T) {
	primary := newFakePrimary()
	ids := seedPrimary(t, primary, 2)
	createdAt := time.Date(2024, 7, 4, 12, 0, 0, 0, time.UTC)
	primary.addEdge(types.Edge{SubjectID: ids[0], ObjectID: ids[1], Type: types.EdgeFollow, CreatedAt: createdAt})

	replica := newFakeReplica()
	job := NewBackfillJob(primary, replica, nil, nil, testLogger(t), 100)

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("backfill: %v", err)
	}
	replica.mu.Lock()
	got := replica.edges[types.EdgeFollow][edgeKey(ids[0], ids[1])]
	replica.mu.Unlock()
	if !got.CreatedAt.Equal(createdAt) {
		t.Fatalf("replica created_at = %v, want %v", got.CreatedAt, createdAt)
	}
}

func TestBackfill_RerunConverges(t *testing.T) {
	primary := newFakePrimary()
	ids := seedPrimary(t, primary, 4)
	primary.addEdge(types.Edge{SubjectID: ids[0], ObjectID: ids[1], Type: types.EdgeFollow, CreatedAt: time.Now().UTC()})
	primary.addEdge(types.Edge{SubjectID: ids[2], ObjectID: ids[3], Type: types.EdgeFollow, CreatedAt: time.Now().UTC()})

	replica := newFakeReplica()
	job := NewBackfillJob(primary, replica, nil, nil, testLogger(t), 2)

	for i := 0; i < 2; i++ {
		if _, err := job.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if len(replica.nodes) != 4 {
		t.Fatalf("replica nodes = %d after rerun, want 4", len(replica.nodes))
	}
	if replica.edgeCount(types.EdgeFollow) != 2 {
		t.Fatalf("replica follows = %d after rerun, want 2", replica.edgeCount(types.EdgeFollow))
	}
}

func TestBackfill_RecordsFailure(t *testing.T) {
	primary := newFakePrimary()
	seedPrimary(t, primary, 2)
	replica := newFakeReplica()
	replica.upsertNodeErr = errors.New("bolt unavailable")
	job := NewBackfillJob(primary, replica, nil, nil, testLogger(t), 100)

	run, err := job.Run(context.Background())
	if err == nil {
		t.Fatalf("expected backfill to fail")
	}
	if run.Status != types.RunStatusFailed {
		t.Fatalf("run status = %q, want failed", run.Status)
	}
	if run.Error == "" {
		t.Fatalf("run error not recorded")
	}
}
