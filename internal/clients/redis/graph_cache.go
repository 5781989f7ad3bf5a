package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/novasocial/graph-backend/internal/platform/envutil"
	"github.com/novasocial/graph-backend/internal/platform/logger"
)

// GraphCache is a small redis facade for the read-through graph cache.
// Invalidation is versioned: every cached key embeds the version of each user
// it depends on, and a write bumps those versions. Stale keys are never
// deleted, they just stop being addressed and age out via TTL.
type GraphCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	UserVersion(ctx context.Context, userID uuid.UUID) (int64, error)
	BumpUser(ctx context.Context, userIDs ...uuid.UUID) error
	Close() error
}

type graphCache struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewGraphCache(log *logger.Logger) (GraphCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(envutil.Str("REDIS_ADDR", ""))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    envutil.Str("REDIS_PASSWORD", ""),
		DB:          envutil.Int("REDIS_DB", 0),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &graphCache{
		log: log.With("service", "GraphCache"),
		rdb: rdb,
	}, nil
}

func (c *graphCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, fmt.Errorf("graph cache not initialized")
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// Treat a corrupt entry as a miss so the caller refills it.
		c.log.Warn("cache entry unreadable, treating as miss", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (c *graphCache) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("graph cache not initialized")
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

func (c *graphCache) UserVersion(ctx context.Context, userID uuid.UUID) (int64, error) {
	if c == nil || c.rdb == nil {
		return 0, fmt.Errorf("graph cache not initialized")
	}
	v, err := c.rdb.Get(ctx, versionKey(userID)).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	return v, err
}

func (c *graphCache) BumpUser(ctx context.Context, userIDs ...uuid.UUID) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("graph cache not initialized")
	}
	pipe := c.rdb.Pipeline()
	for _, id := range userIDs {
		if id == uuid.Nil {
			continue
		}
		pipe.Incr(ctx, versionKey(id))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *graphCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func versionKey(userID uuid.UUID) string {
	return "graph:ver:" + userID.String()
}
