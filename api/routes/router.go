package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/careforall-backend/api/controllers"
	"github.com/angelmondragon/careforall-backend/api/middleware"
	"github.com/angelmondragon/careforall-backend/internal/payments"
	"github.com/angelmondragon/careforall-backend/internal/pledges"
	"github.com/angelmondragon/careforall-backend/internal/totals"
	"github.com/angelmondragon/careforall-backend/pkg/config"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
	"github.com/angelmondragon/careforall-backend/pkg/metrics"
)

// Dependencies are the services a cmd/api process hands to the router. Route
// groups whose service kind the process does not own may leave theirs nil.
type Dependencies struct {
	Config      *config.Config
	Logger      *logger.Logger
	Pledges     pledges.Service
	Payments    payments.Service
	Totals      totals.Service
	Outbox      controllers.OutboxOperator
	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Readiness   []controllers.ReadinessCheck
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.Principal(cfg.JWT, logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness...))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	if cfg.Service.Owns(config.ServiceKindPledges) {
		r.Route("/pledges", func(r chi.Router) {
			r.Post("/", controllers.PledgeCreate(deps.Pledges, logg))
			r.Get("/{pledgeId}", controllers.PledgeGet(deps.Pledges, logg))
		})
		r.Route("/internal", func(r chi.Router) {
			r.Use(middleware.InternalOnly(cfg.Internal.Token, logg))
			r.Patch("/pledges/{pledgeId}/status", controllers.PledgeUpdateStatus(deps.Pledges, logg))
			r.Get("/outbox/failed", controllers.OutboxFailedList(deps.Outbox, logg))
			r.Post("/outbox/{eventId}/requeue", controllers.OutboxRequeue(deps.Outbox, logg))
		})
	}

	if cfg.Service.Owns(config.ServiceKindPayments) {
		r.Route("/payments", func(r chi.Router) {
			r.Post("/intent", controllers.PaymentIntentCreate(deps.Payments, logg))
			r.Post("/authorize", controllers.PaymentAuthorize(deps.Payments, logg))
			r.Post("/capture", controllers.PaymentCapture(deps.Payments, logg))
			r.Post("/webhooks", controllers.PaymentWebhook(deps.Payments, logg))
		})
	}

	if cfg.Service.Owns(config.ServiceKindTotals) {
		r.Get("/totals/{campaignId}", controllers.CampaignTotals(deps.Totals, logg))
	}

	return r
}
