package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/capacity-router/internal/config"
	"github.com/ehr/capacity-router/internal/domain/capacity"
	"github.com/ehr/capacity-router/internal/domain/hospital"
	"github.com/ehr/capacity-router/internal/domain/routing"
	"github.com/ehr/capacity-router/internal/platform/cache"
	"github.com/ehr/capacity-router/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "routing-server",
		Short: "Hospital capacity routing engine",
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the routing API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Hospital directory
	dir, cleanup, err := buildDirectory(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build hospital directory")
	}
	defer cleanup()

	// Cache
	capCache := cache.New(cache.Config{
		MaxEntries:    cfg.CacheMaxEntries,
		MaxBytes:      cfg.CacheMaxBytes,
		SweepInterval: cfg.CacheSweepInterval(),
	}, logger)
	if cfg.RedisURL != "" {
		backend, err := cache.NewRedisBackend(ctx, cfg.RedisURL, "caprouter:")
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer backend.Close()
		capCache.SetBackend(backend)
		logger.Info().Msg("redis cache backend attached")
	}
	go capCache.Run(ctx)

	// Snapshot store
	store := capacity.NewSnapshotStore(dir, capCache, logger)
	store.SetCapacityTTL(cfg.CapacityTTL())

	// Static fallback candidate set
	var fallback *hospital.StaticDirectory
	if cfg.FallbackHospitalsFile != "" {
		fallback, err = hospital.LoadStaticDirectory(cfg.FallbackHospitalsFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load fallback hospital set")
		}
		logger.Info().Int("hospitals", len(fallback.Candidates())).Msg("fallback hospital set loaded")
	}

	// Routing service
	routeCfg := routing.DefaultConfig()
	routeCfg.DefaultMaxDistanceMiles = cfg.RouteMaxDistanceMiles
	routeCfg.MinBedsUrgent = cfg.RouteMinBedsUrgent
	routeCfg.MinBedsRoutine = cfg.RouteMinBedsRoutine
	routeCfg.MaxOccupancyRoutine = cfg.RouteMaxOccupancy
	router := routing.NewService(store, fallback, routeCfg, logger)

	// Real-time fan-out
	var fanout *capacity.Fanout
	if cfg.CapacityFeedWSURL != "" {
		feed := capacity.NewWSFeed(cfg.CapacityFeedWSURL, logger)
		fanout = capacity.NewFanout(feed, capCache, logger)
		defer fanout.Close()
		if len(cfg.WatchHospitalIDs) > 0 {
			if err := fanout.Subscribe(ctx, cfg.WatchHospitalIDs); err != nil {
				logger.Warn().Err(err).Msg("capacity feed subscription failed; continuing without live updates")
			}
		}
	}

	// Warm the cache for the watched hospitals
	if len(cfg.WatchHospitalIDs) > 0 {
		warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := store.WarmUp(warmCtx, cfg.WatchHospitalIDs); err != nil {
			logger.Warn().Err(err).Msg("cache warm-up failed")
		}
		cancel()
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	apiV1 := e.Group("/api/v1")
	capHandler := capacity.NewHandler(store, fanout, capCache)
	capHandler.SetDefaultRadiusKm(cfg.DefaultRadiusKm)
	capHandler.RegisterRoutes(apiV1)
	routing.NewHandler(router).RegisterRoutes(apiV1)
	if fanout != nil {
		e.GET("/ws/capacity", capHandler.Stream)
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// buildDirectory wires the configured hospital data source.
func buildDirectory(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (hospital.Directory, func(), error) {
	switch cfg.DirectoryMode {
	case config.DirectoryPostgres:
		dir, err := hospital.NewPGDirectory(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("connected to hospital registry database")
		return dir, dir.Close, nil
	case config.DirectoryREST:
		dir := hospital.NewRESTDirectory(cfg.CapacityAPIURL, cfg.CapacityAPIKey, cfg.CapacityAPITimeout())
		logger.Info().Str("url", cfg.CapacityAPIURL).Msg("using REST capacity feed")
		return dir, func() {}, nil
	default:
		dir, err := hospital.LoadStaticDirectory(cfg.FallbackHospitalsFile)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("using static hospital set")
		return dir, func() {}, nil
	}
}
