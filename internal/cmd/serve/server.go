package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/studyplanner/planner-service/internal/config"
	"github.com/studyplanner/planner-service/internal/gemini"
	"github.com/studyplanner/planner-service/internal/identity"
	"github.com/studyplanner/planner-service/internal/observe"
	routecollections "github.com/studyplanner/planner-service/internal/plugin/route/collections"
	routegemini "github.com/studyplanner/planner-service/internal/plugin/route/gemini"
	routesystem "github.com/studyplanner/planner-service/internal/plugin/route/system"
	storemetrics "github.com/studyplanner/planner-service/internal/plugin/store/metrics"
	registrycache "github.com/studyplanner/planner-service/internal/registry/cache"
	registrymigrate "github.com/studyplanner/planner-service/internal/registry/migrate"
	registryroute "github.com/studyplanner/planner-service/internal/registry/route"
	registrystore "github.com/studyplanner/planner-service/internal/registry/store"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config *config.Config
	Store  registrystore.DocumentStore
	Router *gin.Engine
	Port   int

	httpServer *http.Server
}

// Shutdown drains in-flight requests and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if closeErr := s.Store.Close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// StartServer initializes all subsystems and starts the HTTP listener.
// Use cfg.Listener.Port=0 for an OS-assigned port; the actual port is in
// Server.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting planner service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := observe.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	observe.InitMetrics(metricsLabels)

	// Run migrations
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// Initialize cache and inject into context so store loaders can read it.
	var snapshotCache registrycache.SnapshotCache
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if c, err := cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
	} else {
		snapshotCache = c
		ctx = registrycache.WithSnapshotCache(ctx, c)
	}

	// Initialize store
	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	// Resolve the service's own profile for the "me" alias.
	resolver := identity.NewResolver(cfg.SyncUserID, cfg.ResolvedStateDir())
	if cfg.AuthUserID != "" {
		resolver.SetAuthUser(cfg.AuthUserID)
	}
	log.Info("Resolved profile", "profileId", resolver.ProfileID())

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observe.AccessLogMiddleware("/health", "/ready", "/metrics"))
	router.Use(observe.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	// Mount static route plugins.
	for _, loader := range registryroute.Loaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	// Mount document and AI proxy routes.
	routecollections.MountRoutes(router, routecollections.Deps{
		Store:     store,
		Cache:     snapshotCache,
		Resolver:  resolver,
		Namespace: cfg.Namespace,
		AppID:     cfg.AppID,
	})
	geminiClient := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, cfg.GeminiTimeout)
	routegemini.MountRoutes(router, geminiClient)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Listener.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.Listener.ReadHeaderTimeout,
	}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "err", err)
		}
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	log.Info("Server listening", "port", port)

	routesystem.MarkReady()
	return &Server{
		Config:     cfg,
		Store:      store,
		Router:     router,
		Port:       port,
		httpServer: httpServer,
	}, nil
}
