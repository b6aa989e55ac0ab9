package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/careforall-backend/api/controllers"
	"github.com/angelmondragon/careforall-backend/api/routes"
	"github.com/angelmondragon/careforall-backend/pkg/config"
	"github.com/angelmondragon/careforall-backend/pkg/db"
	"github.com/angelmondragon/careforall-backend/pkg/idempotency"
	"github.com/angelmondragon/careforall-backend/pkg/instance"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
	"github.com/angelmondragon/careforall-backend/pkg/metrics"
	"github.com/angelmondragon/careforall-backend/pkg/migrate"
	"github.com/angelmondragon/careforall-backend/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api-" + cfg.Service.Kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		_ = dbClient.Close()
		os.Exit(1)
	}

	closers := []func() error{dbClient.Close}
	readiness := []controllers.ReadinessCheck{{Name: "database", Pinger: dbClient}}

	cache := idempotency.Disabled()
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			shutdown(logg, closers)
			os.Exit(1)
		}
		closers = append(closers, redisClient.Close)
		readiness = append(readiness, controllers.ReadinessCheck{Name: "redis", Pinger: redisClient})
		if cache, err = idempotency.NewCache(redisClient, cfg.Dedup.TTL, logg); err != nil {
			logg.Error(context.Background(), "failed to build dedup cache", err)
			shutdown(logg, closers)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "redis not configured, dedup falls back to the database")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app, err := buildApp(context.Background(), cfg, logg, dbClient, cache, reg)
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		shutdown(logg, closers)
		os.Exit(1)
	}
	closers = append(closers, app.closers...)
	readiness = append(readiness, app.readiness...)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:      cfg,
			Logger:      logg,
			Pledges:     app.pledges,
			Payments:    app.payments,
			Totals:      app.totals,
			Outbox:      app.outbox,
			HTTPMetrics: metrics.NewHTTPMetrics(reg),
			Gatherer:    reg,
			Readiness:   readiness,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	for _, w := range app.workers {
		group.Go(func() error {
			return supervise(groupCtx, logg, w)
		})
	}

	exitCode := 0
	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		exitCode = 1
	}
	shutdown(logg, closers)
	logg.Info(ctx, "api server shut down")
	os.Exit(exitCode)
}

// shutdown closes resources in reverse acquisition order.
func shutdown(logg *logger.Logger, closers []func() error) {
	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i]())
	}
	if err != nil {
		logg.Error(context.Background(), "error releasing resources", err)
	}
}
