package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/studyplanner/planner-service/internal/config"
	registrycache "github.com/studyplanner/planner-service/internal/registry/cache"
	registrystore "github.com/studyplanner/planner-service/internal/registry/store"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/studyplanner/planner-service/internal/plugin/cache/local"
	_ "github.com/studyplanner/planner-service/internal/plugin/cache/noop"
	_ "github.com/studyplanner/planner-service/internal/plugin/cache/redis"
	_ "github.com/studyplanner/planner-service/internal/plugin/route/system"
	_ "github.com/studyplanner/planner-service/internal/plugin/store/memory"
	_ "github.com/studyplanner/planner-service/internal/plugin/store/mongo"
	_ "github.com/studyplanner/planner-service/internal/plugin/store/postgres"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	var geminiTimeoutSecs int = 20
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the planner service HTTP server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs, &geminiTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.GeminiTimeout = time.Duration(geminiTimeoutSecs) * time.Second
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs, geminiTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("PLANNER_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("PLANNER_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.BoolFlag{
			Name:        "cors",
			Category:    "Server:",
			Sources:     cli.EnvVars("PLANNER_CORS"),
			Destination: &cfg.CORSEnabled,
			Value:       cfg.CORSEnabled,
			Usage:       "Enable CORS headers",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("PLANNER_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed origins; empty allows any origin",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("PLANNER_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Graceful shutdown drain timeout in seconds",
		},

		// ── Document Paths ────────────────────────────────────────
		&cli.StringFlag{
			Name:        "namespace",
			Category:    "Document Paths:",
			Sources:     cli.EnvVars("PLANNER_NAMESPACE"),
			Destination: &cfg.Namespace,
			Value:       cfg.Namespace,
			Usage:       "Root segment of every document path",
		},
		&cli.StringFlag{
			Name:        "app-id",
			Category:    "Document Paths:",
			Sources:     cli.EnvVars("PLANNER_APP_ID"),
			Destination: &cfg.AppID,
			Value:       cfg.AppID,
			Usage:       "App segment isolating this app's documents",
		},

		// ── Identity ──────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "profile-id",
			Category:    "Identity:",
			Sources:     cli.EnvVars("PLANNER_PROFILE_ID"),
			Destination: &cfg.SyncUserID,
			Usage:       "Injected cross-device profile id; overrides all other identity sources",
		},
		&cli.StringFlag{
			Name:        "auth-user-id",
			Category:    "Identity:",
			Sources:     cli.EnvVars("PLANNER_AUTH_USER_ID"),
			Destination: &cfg.AuthUserID,
			Usage:       "Authenticated uid supplied by a fronting auth layer",
		},
		&cli.StringFlag{
			Name:        "state-dir",
			Category:    "Identity:",
			Sources:     cli.EnvVars("PLANNER_STATE_DIR"),
			Destination: &cfg.StateDir,
			Usage:       "Directory for the persisted local profile id; defaults to the user config directory",
		},

		// ── Database ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("PLANNER_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Backend store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("PLANNER_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Database connection URL",
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("PLANNER_DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Run schema migrations on startup",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("PLANNER_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("PLANNER_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("PLANNER_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Snapshot cache backend (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     cli.EnvVars("PLANNER_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},
		&cli.DurationFlag{
			Name:        "cache-snapshot-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("PLANNER_CACHE_SNAPSHOT_TTL"),
			Destination: &cfg.CacheSnapshotTTL,
			Value:       cfg.CacheSnapshotTTL,
			Usage:       "How long cached collection snapshots stay valid",
		},

		// ── Gemini ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Category:    "Gemini:",
			Sources:     cli.EnvVars("PLANNER_GEMINI_API_KEY", "GEMINI_API_KEY"),
			Destination: &cfg.GeminiAPIKey,
			Usage:       "Google Generative Language API key",
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Category:    "Gemini:",
			Sources:     cli.EnvVars("PLANNER_GEMINI_MODEL"),
			Destination: &cfg.GeminiModel,
			Value:       cfg.GeminiModel,
			Usage:       "Model used for generation",
		},
		&cli.StringFlag{
			Name:        "gemini-base-url",
			Category:    "Gemini:",
			Sources:     cli.EnvVars("PLANNER_GEMINI_BASE_URL"),
			Destination: &cfg.GeminiBaseURL,
			Value:       cfg.GeminiBaseURL,
			Usage:       "Upstream API base URL",
		},
		&cli.IntFlag{
			Name:        "gemini-timeout-seconds",
			Category:    "Gemini:",
			Sources:     cli.EnvVars("PLANNER_GEMINI_TIMEOUT_SECONDS"),
			Destination: geminiTimeoutSecs,
			Value:       *geminiTimeoutSecs,
			Usage:       "Upstream request timeout in seconds",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("PLANNER_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       "service=planner-service",
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}
