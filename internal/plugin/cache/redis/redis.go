// Package redis implements the snapshot cache on Redis. Snapshots are
// stored as JSON under one key per collection path.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/studyplanner/planner-service/internal/config"
	"github.com/studyplanner/planner-service/internal/model"
	registrycache "github.com/studyplanner/planner-service/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 5 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.SnapshotCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: PLANNER_REDIS_URL is required")
	}
	ttl := cfg.CacheSnapshotTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, ttl)
}

// LoadFromURLWithTTL creates a snapshot cache from a Redis-compatible URL
// with an explicit default TTL.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.SnapshotCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &snapshotCache{client: client, ttl: ttl}, nil
}

type snapshotCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func snapshotKey(path string) string {
	return "planner-snapshot:" + path
}

func (c *snapshotCache) Available() bool {
	return true
}

func (c *snapshotCache) Get(ctx context.Context, path string) ([]model.Record, bool, error) {
	data, err := c.client.Get(ctx, snapshotKey(path)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var records []model.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false, err
	}
	return records, true, nil
}

func (c *snapshotCache) Set(ctx context.Context, path string, records []model.Record, ttl time.Duration) error {
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, snapshotKey(path), data, ttl).Err()
}

func (c *snapshotCache) Remove(ctx context.Context, path string) error {
	return c.client.Del(ctx, snapshotKey(path)).Err()
}

var _ registrycache.SnapshotCache = (*snapshotCache)(nil)
