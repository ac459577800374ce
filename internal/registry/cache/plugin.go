// Package cache defines the snapshot cache interface and its plugin registry.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/studyplanner/planner-service/internal/model"
)

// SnapshotCache holds the latest ordered snapshot per collection path so
// list reads can be served without hitting the store. Entries expire on a
// TTL; the cache is advisory and may be empty at any time.
type SnapshotCache interface {
	// Available reports whether the backend is usable.
	Available() bool
	// Get returns the cached snapshot for the path, or ok=false on a miss.
	Get(ctx context.Context, path string) (records []model.Record, ok bool, err error)
	// Set stores the snapshot. ttl<=0 uses the backend default.
	Set(ctx context.Context, path string, records []model.Record, ttl time.Duration) error
	// Remove drops the cached snapshot for the path.
	Remove(ctx context.Context, path string) error
}

type contextKey struct{}

// WithSnapshotCache returns a context carrying the cache so store and route
// setup can read it.
func WithSnapshotCache(ctx context.Context, c SnapshotCache) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// SnapshotCacheFromContext retrieves the cache, or nil when none was set.
func SnapshotCacheFromContext(ctx context.Context) SnapshotCache {
	c, _ := ctx.Value(contextKey{}).(SnapshotCache)
	return c
}

// Loader creates a SnapshotCache from config carried in ctx.
type Loader func(ctx context.Context) (SnapshotCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
