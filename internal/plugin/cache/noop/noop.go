// Package noop implements a disabled snapshot cache. It is the default;
// every read goes to the store.
package noop

import (
	"context"
	"time"

	"github.com/studyplanner/planner-service/internal/model"
	registrycache "github.com/studyplanner/planner-service/internal/registry/cache"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (registrycache.SnapshotCache, error) {
			return Cache{}, nil
		},
	})
}

// Cache is the always-miss snapshot cache.
type Cache struct{}

func (Cache) Available() bool { return false }

func (Cache) Get(ctx context.Context, path string) ([]model.Record, bool, error) {
	return nil, false, nil
}

func (Cache) Set(ctx context.Context, path string, records []model.Record, ttl time.Duration) error {
	return nil
}

func (Cache) Remove(ctx context.Context, path string) error {
	return nil
}

var _ registrycache.SnapshotCache = Cache{}
