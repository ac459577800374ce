// Package local implements the snapshot cache in process using ristretto.
// Useful for single-instance deployments where Redis would be overkill.
package local

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/studyplanner/planner-service/internal/config"
	"github.com/studyplanner/planner-service/internal/model"
	registrycache "github.com/studyplanner/planner-service/internal/registry/cache"
)

const defaultTTL = 5 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "local",
		Loader: func(ctx context.Context) (registrycache.SnapshotCache, error) {
			cfg := config.FromContext(ctx)
			ttl := defaultTTL
			if cfg != nil && cfg.CacheSnapshotTTL > 0 {
				ttl = cfg.CacheSnapshotTTL
			}
			cache, err := ristretto.NewCache(&ristretto.Config[string, []model.Record]{
				NumCounters: 10_000,
				MaxCost:     1_000,
				BufferItems: 64,
			})
			if err != nil {
				return nil, fmt.Errorf("local cache: %w", err)
			}
			return &snapshotCache{cache: cache, ttl: ttl}, nil
		},
	})
}

type snapshotCache struct {
	cache *ristretto.Cache[string, []model.Record]
	ttl   time.Duration
}

func (c *snapshotCache) Available() bool {
	return true
}

func (c *snapshotCache) Get(ctx context.Context, path string) ([]model.Record, bool, error) {
	records, ok := c.cache.Get(path)
	return records, ok, nil
}

func (c *snapshotCache) Set(ctx context.Context, path string, records []model.Record, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.cache.SetWithTTL(path, records, 1, ttl)
	return nil
}

func (c *snapshotCache) Remove(ctx context.Context, path string) error {
	c.cache.Del(path)
	return nil
}

var _ registrycache.SnapshotCache = (*snapshotCache)(nil)
