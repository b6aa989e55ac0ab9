package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/careforall-backend/internal/eventbus"
	"github.com/angelmondragon/careforall-backend/internal/totals"
	"github.com/angelmondragon/careforall-backend/pkg/config"
	"github.com/angelmondragon/careforall-backend/pkg/db"
	"github.com/angelmondragon/careforall-backend/pkg/idempotency"
	"github.com/angelmondragon/careforall-backend/pkg/instance"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
	"github.com/angelmondragon/careforall-backend/pkg/metrics"
	"github.com/angelmondragon/careforall-backend/pkg/migrate"
	"github.com/angelmondragon/careforall-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "totals-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "totals-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	cache := idempotency.Disabled()
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		if cache, err = idempotency.NewCache(redisClient, cfg.Dedup.TTL, logg); err != nil {
			logg.Error(context.Background(), "failed to build dedup cache", err)
			os.Exit(1)
		}
	}

	transport, err := eventbus.Open(context.Background(), cfg, eventbus.Options{Subscribe: true}, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap event bus", err)
		os.Exit(1)
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logg.Error(context.Background(), "error closing event bus", err)
		}
	}()
	subscriber, err := transport.Subscriber()
	if err != nil {
		logg.Error(context.Background(), "failed to open totals subscription", err)
		os.Exit(1)
	}

	svc, err := totals.NewService(totals.NewRepository(dbClient.DB()), dbClient, cache, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create totals service", err)
		os.Exit(1)
	}
	consumer, err := totals.NewConsumer(svc, subscriber, metrics.NewTotalsMetrics(prometheus.DefaultRegisterer), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create totals consumer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "totals-worker",
		"instance":    instance.ID(),
		"bus_driver":  transport.Driver(),
	})
	logg.Info(ctx, "starting totals worker")

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "totals worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "totals worker shutting down gracefully")
}
