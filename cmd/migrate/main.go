package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ignite/segment-rules/internal/config"
	"github.com/ignite/segment-rules/internal/migrate"
	"github.com/ignite/segment-rules/internal/pkg/distlock"
	"github.com/ignite/segment-rules/internal/pkg/logger"
	"github.com/ignite/segment-rules/migrations"
)

const (
	lockKey = "migrate"
	// lockTTL bounds how long a crashed migrator blocks others; a live one
	// renews it every lockTTL/3.
	lockTTL = time.Minute
)

func main() {
	var (
		configPath  string
		listOnly    bool
		lockTimeout time.Duration
	)

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply the segment repository schema to PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
			if cfg.Database.URL == "" {
				return errors.New("DATABASE_URL is required")
			}
			return run(cmd.Context(), cfg, listOnly, lockTimeout)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	root.Flags().BoolVar(&listOnly, "list", false, "list applied versions and exit")
	root.Flags().DurationVar(&lockTimeout, "lock-timeout", 2*time.Minute, "how long to wait for another migrator")

	if err := root.ExecuteContext(context.Background()); err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, listOnly bool, lockTimeout time.Duration) error {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	logger.Info("Connected to database")

	if listOnly {
		versions, err := migrate.Applied(ctx, db)
		if err != nil {
			return err
		}
		for _, v := range versions {
			fmt.Println(" ", v)
		}
		fmt.Printf("Total: %d applied\n", len(versions))
		return nil
	}

	var redisClient *redis.Client
	if cfg.Cache.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	lock := distlock.NewLock(redisClient, db, lockKey, lockTTL)
	waitCtx, cancelWait := context.WithTimeout(ctx, lockTimeout)
	defer cancelWait()
	if err := distlock.Wait(waitCtx, lock, 2*time.Second); err != nil {
		return fmt.Errorf("another migration is running: %w", err)
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("release migration lock", "error", err)
		}
	}()

	// Losing the lock cancels the file in flight; its transaction rolls back.
	applyCtx, cancelApply := context.WithCancelCause(ctx)
	defer cancelApply(nil)
	stop := distlock.KeepAlive(applyCtx, lock, lockTTL, lockTTL/3, func(err error) {
		cancelApply(fmt.Errorf("migration lock lost: %w", err))
	})
	res, err := migrate.Apply(applyCtx, db, migrations.FS)
	stop()
	if err != nil {
		if cause := context.Cause(applyCtx); cause != nil && !errors.Is(cause, context.Canceled) {
			return fmt.Errorf("%w: %v", cause, err)
		}
		return err
	}
	logger.Info("Migrations complete", "applied", len(res.Applied), "skipped", len(res.Skipped))
	return nil
}
