package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/novasocial/graph-backend/internal/domain"
	"github.com/novasocial/graph-backend/internal/platform/logger"
	"github.com/novasocial/graph-backend/internal/platform/neo4jdb"
)

const (
	maxBatchCheck = 100
	maxPageLimit  = 10000
)

// relNames maps edge types onto replica relationship labels.
var relNames = map[types.EdgeType]string{
	types.EdgeFollow: "FOLLOWS",
	types.EdgeMute:   "MUTES",
	types.EdgeBlock:  "BLOCKS",
}

// Replica is the read-optimized graph projection. All writes are MERGE-based
// so duplicate and concurrent upserts converge to the same state.
type Replica struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewReplica(client *neo4jdb.Client, baseLog *logger.Logger) *Replica {
	return &Replica{client: client, log: baseLog.With("store", "GraphReplica")}
}

func (r *Replica) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: r.client.Database,
	})
}

// EnsureSchema installs the uniqueness constraint behind node MERGEs.
// Safe to call on every boot.
func (r *Replica) EnsureSchema(ctx context.Context) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	res, err := session.Run(ctx, `CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`, nil)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func (r *Replica) HealthCheck(ctx context.Context) error {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, "RETURN 1 AS health", nil)
	if err != nil {
		return err
	}
	record, err := result.Single(ctx)
	if err != nil {
		return err
	}
	health, _ := record.Get("health")
	if v, ok := health.(int64); !ok || v != 1 {
		return fmt.Errorf("neo4j health probe returned %v", health)
	}
	return nil
}

// UpsertNode is the live-path node write. created_at is set only when the
// MERGE creates the node, so a repeated upsert can change the username but
// never the node's timestamp. The batch path uses a plain SET instead,
// because there the value is the primary's stored one and must win.
func (r *Replica) UpsertNode(ctx context.Context, node types.UserNode) error {
	if node.ID == uuid.Nil {
		return nil
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (u:User {id: $id})
ON CREATE SET u.created_at = $created_at
SET u.username = $username
`, map[string]any{
			"id":         node.ID.String(),
			"username":   node.Username,
			"created_at": node.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

// UpsertNodes MERGEs user nodes by id in one UNWIND batch. Re-running with the
// same rows never duplicates.
func (r *Replica) UpsertNodes(ctx context.Context, nodes []types.UserNode) error {
	if len(nodes) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == uuid.Nil {
			continue
		}
		rows = append(rows, map[string]any{
			"id":         n.ID.String(),
			"username":   n.Username,
			"created_at": n.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	if len(rows) == 0 {
		return nil
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $rows AS row
MERGE (u:User {id: row.id})
SET u.username = row.username, u.created_at = row.created_at
`, map[string]any{"rows": rows})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

// UpsertEdge is the live-path edge write. ON CREATE keeps an existing
// relationship's created_at untouched when the same pair is written twice.
func (r *Replica) UpsertEdge(ctx context.Context, edge types.Edge) error {
	rel, ok := relNames[edge.Type]
	if !ok {
		return fmt.Errorf("unknown edge type %q", edge.Type)
	}
	if edge.SubjectID == uuid.Nil || edge.ObjectID == uuid.Nil {
		return nil
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
MERGE (a:User {id: $subject})
MERGE (b:User {id: $object})
MERGE (a)-[r:%s]->(b)
ON CREATE SET r.created_at = $created_at
`, rel), map[string]any{
			"subject":    edge.SubjectID.String(),
			"object":     edge.ObjectID.String(),
			"created_at": edge.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

// UpsertEdges MERGEs edges of one batch, overwriting created_at with the
// primary's stored value so a backfill repairs any drifted timestamps.
func (r *Replica) UpsertEdges(ctx context.Context, edges []types.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	byRel := make(map[string][]map[string]any)
	for _, e := range edges {
		rel, ok := relNames[e.Type]
		if !ok {
			return fmt.Errorf("unknown edge type %q", e.Type)
		}
		if e.SubjectID == uuid.Nil || e.ObjectID == uuid.Nil {
			continue
		}
		byRel[rel] = append(byRel[rel], map[string]any{
			"subject":    e.SubjectID.String(),
			"object":     e.ObjectID.String(),
			"created_at": e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for rel, rows := range byRel {
			res, err := tx.Run(ctx, fmt.Sprintf(`
UNWIND $rows AS row
MERGE (a:User {id: row.subject})
MERGE (b:User {id: row.object})
MERGE (a)-[r:%s]->(b)
SET r.created_at = row.created_at
`, rel), map[string]any{"rows": rows})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (r *Replica) DeleteEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) error {
	rel, ok := relNames[et]
	if !ok {
		return fmt.Errorf("unknown edge type %q", et)
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
MATCH (a:User {id: $subject})-[r:%s]->(b:User {id: $object})
DELETE r
`, rel), map[string]any{"subject": subject.String(), "object": object.String()})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

func (r *Replica) EdgeExists(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) (bool, error) {
	rel, ok := relNames[et]
	if !ok {
		return false, fmt.Errorf("unknown edge type %q", et)
	}

	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
MATCH (a:User {id: $subject})-[r:%s]->(b:User {id: $object})
RETURN count(r) > 0 AS exists
`, rel), map[string]any{"subject": subject.String(), "object": object.String()})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		v, _ := record.Get("exists")
		exists, _ := v.(bool)
		return exists, nil
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

// GetNeighbors pages one side of a relationship with the total count. Results
// are ordered by neighbor id for stable pagination.
func (r *Replica) GetNeighbors(ctx context.Context, et types.EdgeType, dir types.Direction, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error) {
	rel, ok := relNames[et]
	if !ok {
		return types.NeighborPage{}, fmt.Errorf("unknown edge type %q", et)
	}
	if limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	pattern := fmt.Sprintf("(anchor:User {id: $anchor})-[:%s]->(n:User)", rel)
	if dir == types.DirIn {
		pattern = fmt.Sprintf("(n:User)-[:%s]->(anchor:User {id: $anchor})", rel)
	}

	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf("MATCH %s RETURN count(n) AS total", pattern),
			map[string]any{"anchor": anchor.String()})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		tv, _ := record.Get("total")
		total, _ := tv.(int64)

		res, err = tx.Run(ctx, fmt.Sprintf(`
MATCH %s
RETURN n.id AS id
ORDER BY n.id
SKIP $offset
LIMIT $limit
`, pattern), map[string]any{
			"anchor": anchor.String(),
			"offset": int64(offset),
			"limit":  int64(limit),
		})
		if err != nil {
			return nil, err
		}

		var ids []uuid.UUID
		for res.Next(ctx) {
			v, _ := res.Record().Get("id")
			s, ok := v.(string)
			if !ok {
				continue
			}
			id, err := uuid.Parse(s)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		return types.NeighborPage{
			IDs:        ids,
			TotalCount: total,
			HasMore:    int64(offset+limit) < total,
		}, nil
	})
	if err != nil {
		return types.NeighborPage{}, err
	}
	return out.(types.NeighborPage), nil
}

// MutualFollowers lists neighbors with FOLLOWS edges in both directions.
func (r *Replica) MutualFollowers(ctx context.Context, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error) {
	if limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (anchor:User {id: $anchor})-[:FOLLOWS]->(n:User)-[:FOLLOWS]->(anchor)
RETURN count(n) AS total
`, map[string]any{"anchor": anchor.String()})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		tv, _ := record.Get("total")
		total, _ := tv.(int64)

		res, err = tx.Run(ctx, `
MATCH (anchor:User {id: $anchor})-[:FOLLOWS]->(n:User)-[:FOLLOWS]->(anchor)
RETURN n.id AS id
ORDER BY n.id
SKIP $offset
LIMIT $limit
`, map[string]any{
			"anchor": anchor.String(),
			"offset": int64(offset),
			"limit":  int64(limit),
		})
		if err != nil {
			return nil, err
		}

		var ids []uuid.UUID
		for res.Next(ctx) {
			v, _ := res.Record().Get("id")
			if s, ok := v.(string); ok {
				if id, err := uuid.Parse(s); err == nil {
					ids = append(ids, id)
				}
			}
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		return types.NeighborPage{
			IDs:        ids,
			TotalCount: total,
			HasMore:    int64(offset+limit) < total,
		}, nil
	})
	if err != nil {
		return types.NeighborPage{}, err
	}
	return out.(types.NeighborPage), nil
}

// BatchEdgeExists answers existence for up to 100 targets in one round trip.
// There is deliberately no relational fallback for this query.
func (r *Replica) BatchEdgeExists(ctx context.Context, et types.EdgeType, subject uuid.UUID, targets []uuid.UUID) (map[string]bool, error) {
	rel, ok := relNames[et]
	if !ok {
		return nil, fmt.Errorf("unknown edge type %q", et)
	}
	if len(targets) > maxBatchCheck {
		return nil, fmt.Errorf("batch existence check limited to %d targets, got %d", maxBatchCheck, len(targets))
	}
	if len(targets) == 0 {
		return map[string]bool{}, nil
	}

	targetIDs := make([]string, 0, len(targets))
	for _, t := range targets {
		targetIDs = append(targetIDs, t.String())
	}

	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
MATCH (subject:User {id: $subject})
UNWIND $targets AS target_id
OPTIONAL MATCH (subject)-[r:%s]->(target:User {id: target_id})
RETURN target_id, r IS NOT NULL AS exists
`, rel), map[string]any{"subject": subject.String(), "targets": targetIDs})
		if err != nil {
			return nil, err
		}

		results := make(map[string]bool, len(targetIDs))
		for res.Next(ctx) {
			record := res.Record()
			tv, _ := record.Get("target_id")
			ev, _ := record.Get("exists")
			id, ok := tv.(string)
			if !ok {
				continue
			}
			exists, _ := ev.(bool)
			results[id] = exists
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(map[string]bool), nil
}

// AggregateStats computes all four per-user counts in one traversal. The
// relational equivalent is an unbounded join, so this query is replica-only.
func (r *Replica) AggregateStats(ctx context.Context, userID uuid.UUID) (types.GraphStats, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (user:User {id: $user_id})
OPTIONAL MATCH (follower:User)-[:FOLLOWS]->(user)
WITH user, count(follower) AS followers_count
OPTIONAL MATCH (user)-[:FOLLOWS]->(following:User)
WITH user, followers_count, count(following) AS following_count
OPTIONAL MATCH (user)-[:MUTES]->(muted:User)
WITH user, followers_count, following_count, count(muted) AS muted_count
OPTIONAL MATCH (user)-[:BLOCKS]->(blocked:User)
RETURN followers_count, following_count, muted_count, count(blocked) AS blocked_count
`, map[string]any{"user_id": userID.String()})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			// Unknown user: empty stats, not an error.
			return types.GraphStats{UserID: userID}, nil
		}
		record := res.Record()
		stats := types.GraphStats{UserID: userID}
		if v, ok := record.Get("followers_count"); ok {
			stats.FollowersCount, _ = v.(int64)
		}
		if v, ok := record.Get("following_count"); ok {
			stats.FollowingCount, _ = v.(int64)
		}
		if v, ok := record.Get("muted_count"); ok {
			stats.MutedCount, _ = v.(int64)
		}
		if v, ok := record.Get("blocked_count"); ok {
			stats.BlockedCount, _ = v.(int64)
		}
		return stats, nil
	})
	if err != nil {
		return types.GraphStats{}, err
	}
	return out.(types.GraphStats), nil
}

func (r *Replica) CountNodes(ctx context.Context) (int64, error) {
	return r.scalarCount(ctx, "MATCH (u:User) RETURN count(u) AS total", nil)
}

func (r *Replica) CountEdges(ctx context.Context, et types.EdgeType) (int64, error) {
	rel, ok := relNames[et]
	if !ok {
		return 0, fmt.Errorf("unknown edge type %q", et)
	}
	return r.scalarCount(ctx, fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r) AS total", rel), nil)
}

func (r *Replica) NeighborCount(ctx context.Context, et types.EdgeType, dir types.Direction, anchor uuid.UUID) (int64, error) {
	rel, ok := relNames[et]
	if !ok {
		return 0, fmt.Errorf("unknown edge type %q", et)
	}
	pattern := fmt.Sprintf("(anchor:User {id: $anchor})-[r:%s]->()", rel)
	if dir == types.DirIn {
		pattern = fmt.Sprintf("()-[r:%s]->(anchor:User {id: $anchor})", rel)
	}
	return r.scalarCount(ctx,
		fmt.Sprintf("MATCH %s RETURN count(r) AS total", pattern),
		map[string]any{"anchor": anchor.String()})
}

func (r *Replica) scalarCount(ctx context.Context, cypher string, params map[string]any) (int64, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		v, _ := record.Get("total")
		total, _ := v.(int64)
		return total, nil
	})
	if err != nil {
		return 0, err
	}
	return out.(int64), nil
}
