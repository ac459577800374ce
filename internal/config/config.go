package config

import (
	"context"
	"os"
	"strings"
	"time"
)

// ListenerConfig holds the network settings for the HTTP listener.
type ListenerConfig struct {
	Port              int
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the planner service.
type Config struct {
	// Namespace is the root segment of every document path.
	Namespace string
	// AppID is the second path segment, isolating this app's data
	// from other apps sharing the same store.
	AppID string

	// Database
	DBURL string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// Datastore backend type ("mongo", "postgres", or "memory").
	DatastoreType string

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Snapshot cache backend type ("redis", "local", or "none").
	CacheType string

	// Redis
	RedisURL string

	// How long cached collection snapshots stay valid.
	CacheSnapshotTTL time.Duration

	// Identity
	// SyncUserID is a host-injected cross-device profile id. When set it
	// takes precedence over every other identity source.
	SyncUserID string
	// AuthUserID is the authenticated identity's uid, when the deployment
	// fronts this service with an auth layer.
	AuthUserID string
	// StateDir is where the locally generated profile id is persisted.
	// Empty uses the platform default user config directory.
	StateDir string

	// Gemini upstream
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	GeminiTimeout time.Duration

	// Server
	Listener    ListenerConfig
	CORSEnabled bool
	CORSOrigins string

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Namespace:               "artifacts",
		AppID:                   "study-planner-v1",
		DatastoreType:           "mongo",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		CacheType:               "none",
		CacheSnapshotTTL:        time.Minute,
		CORSEnabled:             true,
		GeminiModel:             "gemini-2.5-flash-preview-09-2025",
		GeminiBaseURL:           "https://generativelanguage.googleapis.com",
		GeminiTimeout:           20 * time.Second,
		Listener: ListenerConfig{
			Port:              4000,
			ReadHeaderTimeout: 5 * time.Second,
		},
		MaxBodySize:  1 << 20,
		DrainTimeout: 30,
	}
}

// ResolvedStateDir returns the configured state directory or a per-user default.
func (c *Config) ResolvedStateDir() string {
	if c != nil {
		if dir := strings.TrimSpace(c.StateDir); dir != "" {
			return dir
		}
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + string(os.PathSeparator) + "planner-service"
	}
	return os.TempDir()
}
