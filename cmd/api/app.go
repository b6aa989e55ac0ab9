package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/careforall-backend/api/controllers"
	"github.com/angelmondragon/careforall-backend/internal/campaigns"
	"github.com/angelmondragon/careforall-backend/internal/eventbus"
	"github.com/angelmondragon/careforall-backend/internal/payments"
	"github.com/angelmondragon/careforall-backend/internal/pledges"
	"github.com/angelmondragon/careforall-backend/internal/relay"
	"github.com/angelmondragon/careforall-backend/internal/totals"
	"github.com/angelmondragon/careforall-backend/pkg/config"
	"github.com/angelmondragon/careforall-backend/pkg/db"
	"github.com/angelmondragon/careforall-backend/pkg/idempotency"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
	"github.com/angelmondragon/careforall-backend/pkg/metrics"
	"github.com/angelmondragon/careforall-backend/pkg/outbox"
	"github.com/angelmondragon/careforall-backend/pkg/outbox/registry"
)

const workerRestartDelay = 5 * time.Second

// worker is a long-running loop embedded in the api process.
type worker struct {
	name string
	run  func(ctx context.Context) error
}

type app struct {
	pledges   pledges.Service
	payments  payments.Service
	totals    totals.Service
	outbox    controllers.OutboxOperator
	workers   []worker
	closers   []func() error
	readiness []controllers.ReadinessCheck
}

// buildApp constructs the services for every kind this process owns and,
// when embedded workers are enabled, the relay and totals consumer loops.
func buildApp(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, cache *idempotency.Cache, reg prometheus.Registerer) (*app, error) {
	a := &app{}
	outboxRepo := outbox.NewRepository(dbClient.DB())

	if cfg.Service.Owns(config.ServiceKindPledges) {
		campaignClient, err := campaigns.NewClient(cfg.Campaigns)
		if err != nil {
			return nil, fmt.Errorf("campaign client: %w", err)
		}
		svc, err := pledges.NewService(pledges.ServiceParams{
			Repo:      pledges.NewRepository(dbClient.DB()),
			Tx:        dbClient,
			Outbox:    outbox.NewService(outboxRepo, logg),
			Campaigns: campaignClient,
			Cache:     cache,
			Logger:    logg,
		})
		if err != nil {
			return nil, fmt.Errorf("pledge service: %w", err)
		}
		a.pledges = svc
		a.outbox = outboxRepo
	}

	if cfg.Service.Owns(config.ServiceKindPayments) {
		forwarder, err := payments.NewPledgeStatusClient(cfg.Pledges, cfg.Internal, &http.Client{})
		if err != nil {
			return nil, fmt.Errorf("pledge status client: %w", err)
		}
		provider := payments.NewMockProvider(cfg.Payments, logg)
		a.closers = append(a.closers, func() error {
			provider.Close()
			return nil
		})
		svc, err := payments.NewService(payments.ServiceParams{
			Repo:      payments.NewRepository(dbClient.DB()),
			Tx:        dbClient,
			Provider:  provider,
			Forwarder: forwarder,
			Cache:     cache,
			Metrics:   metrics.NewWebhookMetrics(reg),
			Logger:    logg,
		})
		if err != nil {
			return nil, fmt.Errorf("payment service: %w", err)
		}
		a.payments = svc
	}

	if cfg.Service.Owns(config.ServiceKindTotals) {
		svc, err := totals.NewService(totals.NewRepository(dbClient.DB()), dbClient, cache, logg)
		if err != nil {
			return nil, fmt.Errorf("totals service: %w", err)
		}
		a.totals = svc
	}

	if !cfg.FeatureFlags.EmbeddedWorkers {
		return a, nil
	}
	relayed := cfg.Service.Owns(config.ServiceKindPledges)
	consumed := cfg.Service.Owns(config.ServiceKindTotals)
	if !relayed && !consumed {
		return a, nil
	}

	transport, err := eventbus.Open(ctx, cfg, eventbus.Options{Subscribe: consumed}, logg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, transport.Close)
	a.readiness = append(a.readiness, controllers.ReadinessCheck{Name: "bus", Pinger: transport})

	if relayed {
		eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("event registry: %w", err)
		}
		relaySvc, err := relay.NewService(relay.ServiceParams{
			Config:     cfg.Outbox,
			Logger:     logg,
			DB:         dbClient,
			Repository: outboxRepo,
			Registry:   eventRegistry,
			Publisher:  transport.Publisher(),
			Metrics:    metrics.NewOutboxMetrics(reg),
		})
		if err != nil {
			return nil, fmt.Errorf("outbox relay: %w", err)
		}
		a.workers = append(a.workers, worker{name: "outbox-relay", run: relaySvc.Run})
	}

	if consumed {
		sub, err := transport.Subscriber()
		if err != nil {
			return nil, err
		}
		consumer, err := totals.NewConsumer(a.totals, sub, metrics.NewTotalsMetrics(reg), logg)
		if err != nil {
			return nil, fmt.Errorf("totals consumer: %w", err)
		}
		a.workers = append(a.workers, worker{name: "totals-consumer", run: consumer.Run})
	}
	return a, nil
}

// supervise restarts w after a failure until ctx is canceled. A failing worker
// never ends the process.
func supervise(ctx context.Context, logg *logger.Logger, w worker) error {
	ctx = logg.WithField(ctx, "worker", w.name)
	for {
		logg.Info(ctx, "embedded worker starting")
		err := w.run(ctx)
		if ctx.Err() != nil {
			logg.Info(ctx, "embedded worker stopped")
			return nil
		}
		if err == nil {
			err = errors.New("worker returned without error")
		}
		logg.Error(ctx, "embedded worker failed, restarting", err)

		timer := time.NewTimer(workerRestartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
