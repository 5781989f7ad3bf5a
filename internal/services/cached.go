package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/novasocial/graph-backend/internal/clients/redis"
	types "github.com/novasocial/graph-backend/internal/domain"
	"github.com/novasocial/graph-backend/internal/observability"
	"github.com/novasocial/graph-backend/internal/platform/logger"
)

const defaultCacheTTL = 60 * time.Second

// CachedGraphService is a read-through cache in front of another
// GraphService. Cache problems never fail a call: a broken cache degrades to
// the inner service. Writes pass through and bump the version of every user
// they touch, which orphans the cached entries for those users.
type CachedGraphService struct {
	inner   GraphService
	cache   redisclient.GraphCache
	metrics *observability.Metrics
	log     *logger.Logger
	ttl     time.Duration
}

var _ GraphService = (*CachedGraphService)(nil)

func NewCachedGraphService(inner GraphService, cache redisclient.GraphCache, metrics *observability.Metrics, baseLog *logger.Logger, ttl time.Duration) *CachedGraphService {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedGraphService{
		inner:   inner,
		cache:   cache,
		metrics: metrics,
		log:     baseLog.With("service", "cached_graph"),
		ttl:     ttl,
	}
}

func (s *CachedGraphService) UpsertUser(ctx context.Context, userID uuid.UUID, username string) error {
	if err := s.inner.UpsertUser(ctx, userID, username); err != nil {
		return err
	}
	s.bump(ctx, userID)
	return nil
}

func (s *CachedGraphService) CreateEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) error {
	if err := s.inner.CreateEdge(ctx, et, subject, object); err != nil {
		return err
	}
	s.bump(ctx, subject, object)
	return nil
}

func (s *CachedGraphService) DeleteEdge(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) error {
	if err := s.inner.DeleteEdge(ctx, et, subject, object); err != nil {
		return err
	}
	s.bump(ctx, subject, object)
	return nil
}

func (s *CachedGraphService) EdgeExists(ctx context.Context, et types.EdgeType, subject, object uuid.UUID) (bool, error) {
	key, ok := s.key(ctx, "exists", subject, fmt.Sprintf("%s:%s", et, object))
	if ok {
		var cached bool
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			s.metrics.IncCacheHit("edge_exists")
			return cached, nil
		}
		s.metrics.IncCacheMiss("edge_exists")
	}
	exists, err := s.inner.EdgeExists(ctx, et, subject, object)
	if err == nil && ok {
		s.store(ctx, key, exists)
	}
	return exists, err
}

func (s *CachedGraphService) ListNeighbors(ctx context.Context, et types.EdgeType, dir types.Direction, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error) {
	key, ok := s.key(ctx, "neighbors", anchor, fmt.Sprintf("%s:%s:%d:%d", et, dir, limit, offset))
	if ok {
		var cached types.NeighborPage
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			s.metrics.IncCacheHit("list_neighbors")
			return cached, nil
		}
		s.metrics.IncCacheMiss("list_neighbors")
	}
	page, err := s.inner.ListNeighbors(ctx, et, dir, anchor, limit, offset)
	if err == nil && ok {
		s.store(ctx, key, page)
	}
	return page, err
}

func (s *CachedGraphService) MutualFollowers(ctx context.Context, anchor uuid.UUID, limit, offset int) (types.NeighborPage, error) {
	key, ok := s.key(ctx, "mutual", anchor, fmt.Sprintf("%d:%d", limit, offset))
	if ok {
		var cached types.NeighborPage
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			s.metrics.IncCacheHit("mutual_followers")
			return cached, nil
		}
		s.metrics.IncCacheMiss("mutual_followers")
	}
	page, err := s.inner.MutualFollowers(ctx, anchor, limit, offset)
	if err == nil && ok {
		s.store(ctx, key, page)
	}
	return page, err
}

// BatchEdgeExists is not cached: the target set varies per call, so hit rates
// would be negligible next to the cost of the extra roundtrip.
func (s *CachedGraphService) BatchEdgeExists(ctx context.Context, et types.EdgeType, subject uuid.UUID, targets []uuid.UUID) (map[string]bool, error) {
	return s.inner.BatchEdgeExists(ctx, et, subject, targets)
}

func (s *CachedGraphService) AggregateStats(ctx context.Context, userID uuid.UUID) (types.GraphStats, error) {
	key, ok := s.key(ctx, "stats", userID, "")
	if ok {
		var cached types.GraphStats
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			s.metrics.IncCacheHit("aggregate_stats")
			return cached, nil
		}
		s.metrics.IncCacheMiss("aggregate_stats")
	}
	stats, err := s.inner.AggregateStats(ctx, userID)
	if err == nil && ok {
		s.store(ctx, key, stats)
	}
	return stats, err
}

func (s *CachedGraphService) HealthCheck(ctx context.Context) error {
	return s.inner.HealthCheck(ctx)
}

// key builds a versioned cache key anchored on one user. The bool is false
// when the cache is unavailable, in which case the caller skips caching.
func (s *CachedGraphService) key(ctx context.Context, kind string, anchor uuid.UUID, rest string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	ver, err := s.cache.UserVersion(ctx, anchor)
	if err != nil {
		s.log.Warn("cache version lookup failed, bypassing cache", "error", err)
		return "", false
	}
	return fmt.Sprintf("graph:%s:%s:v%d:%s", kind, anchor, ver, rest), true
}

func (s *CachedGraphService) store(ctx context.Context, key string, val any) {
	if err := s.cache.SetJSON(ctx, key, val, s.ttl); err != nil {
		s.log.Warn("cache write failed", "key", key, "error", err)
	}
}

func (s *CachedGraphService) bump(ctx context.Context, userIDs ...uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.BumpUser(ctx, userIDs...); err != nil {
		s.log.Warn("cache invalidation failed", "error", err)
	}
}
