package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "artifacts", cfg.Namespace)
	require.Equal(t, "study-planner-v1", cfg.AppID)
	require.Equal(t, "mongo", cfg.DatastoreType)
	require.Equal(t, "none", cfg.CacheType)
	require.Equal(t, 4000, cfg.Listener.Port)
	require.True(t, cfg.CORSEnabled)
	require.Equal(t, "gemini-2.5-flash-preview-09-2025", cfg.GeminiModel)
}

func TestConfigContextRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))

	require.Nil(t, FromContext(context.Background()))
}

func TestResolvedStateDirPrefersConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StateDir = "/var/lib/planner"
	require.Equal(t, "/var/lib/planner", cfg.ResolvedStateDir())

	cfg.StateDir = "   "
	require.NotEmpty(t, cfg.ResolvedStateDir())
}
