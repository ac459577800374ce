package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/studyplanner/planner-service/internal/config"
)

func TestMigratorSkipsWithoutConfig(t *testing.T) {
	require.NoError(t, (&mongoMigrator{}).Migrate(context.Background()))
}

func TestMigratorSkipsOtherBackends(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "postgres"
	ctx := config.WithContext(context.Background(), &cfg)
	require.NoError(t, (&mongoMigrator{}).Migrate(ctx))
}
