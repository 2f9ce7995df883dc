package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/ignite/segment-rules/internal/api"
	"github.com/ignite/segment-rules/internal/cache"
	"github.com/ignite/segment-rules/internal/config"
	"github.com/ignite/segment-rules/internal/pkg/logger"
	"github.com/ignite/segment-rules/internal/repository/memory"
	"github.com/ignite/segment-rules/internal/repository/postgres"
)

func main() {
	var (
		configPath string
		tenant     int64
	)
	root := &cobra.Command{
		Use:           "stub-api",
		Short:         "Serve a stub segment repository for local testing",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return serve(cfg, tenant)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	root.Flags().Int64Var(&tenant, "default-tenant", 0, "tenant used when X-Tenant-ID is absent (0 requires the header)")

	if err := root.Execute(); err != nil {
		logger.Error("stub-api failed", "error", err)
		os.Exit(1)
	}
}

func serve(cfg *config.Config, tenant int64) error {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.ShouldRedactPII())
	defer logger.Sync()

	logger.Warn("This is a STUB segment repository for local testing only. match_count is never computed.")

	deps := api.Deps{DefaultTenant: tenant}
	var dbPinger api.Pinger

	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		logger.Info("Connected to database; run cmd/migrate first if the schema is missing")

		repo := postgres.NewSegmentRepo(db)
		deps.Store = repo
		dbPinger = repo
	} else {
		logger.Info("DATABASE_URL not set, keeping segments in memory")
		deps.Store = memory.NewSegmentStore()
	}

	var redisCache *cache.Redis
	if cfg.Cache.RedisURL != "" {
		var err error
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisCache, err = cache.NewRedisFromURL(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL())
		cancel()
		if err != nil {
			logger.Warn("Redis unavailable, health check disabled", "error", err)
		} else {
			defer redisCache.Close()
		}
	}
	if redisCache != nil {
		deps.Health = api.NewHealthChecker(dbPinger, redisCache.Client())
	} else {
		deps.Health = api.NewHealthChecker(dbPinger, nil)
	}

	server := api.NewServer(cfg.Server, deps)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Server.Addr()
		logger.Info("Stub API listening", "addr", addr, "auth", cfg.Server.AccessToken != "")
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-quit:
	}

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
