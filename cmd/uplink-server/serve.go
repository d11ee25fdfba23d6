package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/MRamiBalles/uplink-sim/server/internal/engine"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/cache"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
	"github.com/MRamiBalles/uplink-sim/server/internal/network"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/config"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/logger"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/metrics"
	"github.com/MRamiBalles/uplink-sim/server/internal/world"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation clock and the HTTP/WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	cfg, loadedDotEnv, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	appLogger, err := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		return err
	}
	if loadedDotEnv {
		appLogger.Info("Loaded configuration overrides from .env")
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	appLogger.Infof("Opening SQLite database %s...", cfg.DBPath)
	store, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := metrics.NewRegistry()
	collector := metrics.NewCollector(registry)
	metricsServer := metrics.NewMetricsServer(cfg.MetricsPort, cfg.MetricsEndpoint, registry, appLogger)
	metricsServer.Start()

	seed, err := world.LoadSeed(cfg.WorldSeedPath)
	if err != nil {
		return err
	}

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(appLogger, collector, cfg.Tuning.MaxClientsPerSession)
	go hub.Run(ctx)

	opts := []engine.Option{
		engine.WithWorld(world.NewSeedGenerator(seed)),
		engine.WithMissionGenerator(engine.NewBasicMissionGenerator(nil, seed.Employers)),
		engine.WithSubsystems(engine.NewNewsWire(seed.Headlines, cfg.NewsEveryTicks)),
		engine.WithStartingBalance(cfg.StartingBalance),
		engine.WithMetrics(collector),
	}
	if cfg.CacheEnabled() {
		client, err := connectRedis(ctx, cfg, appLogger)
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, engine.WithCache(cache.NewStatusCache(client, cfg.RedisStatusTTL)))
	} else {
		appLogger.Warn("REDIS_ADDR not set, status cache disabled")
	}

	appLogger.Info("Bootstrapping Engine Subsystems...")
	gameEngine := engine.NewEngine(store, hub, appLogger, opts...)
	gameEngine.Start(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           network.NewServer(gameEngine, hub, cfg.Tuning, appLogger, splitOrigins(cfg.AllowedWSOrigins)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		appLogger.Infof("HTTP API & WS Server listening on :%d", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		appLogger.Infof("Received %s, shutting down...", sig)
	case err = <-serverErr:
		appLogger.Errorf("HTTP server failed: %v", err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stop()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		appLogger.Warnf("HTTP shutdown: %v", serr)
	}
	gameEngine.Stop()
	cancel()
	if serr := metricsServer.Shutdown(shutdownCtx); serr != nil {
		appLogger.Warnf("Metrics shutdown: %v", serr)
	}
	return err
}

// connectRedis pings with exponential backoff until the server answers.
func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		PoolSize:     cfg.Tuning.RedisPoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.RedisMaxRetries), ctx)
	err := backoff.Retry(func() error {
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warnf("Redis connection failed: %v, retrying...", err)
			return err
		}
		return nil
	}, policy)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("redis at %s unreachable: %w", cfg.RedisAddr, err)
	}
	log.Info("Redis status cache connected")
	return client, nil
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
