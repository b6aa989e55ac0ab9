package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/careforall-backend/pkg/db/models"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/careforall-backend/pkg/errors"
	"github.com/angelmondragon/careforall-backend/pkg/idempotency"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type webhookMetrics interface {
	Inc(eventType, status string)
}

// Service owns payment transactions and provider callbacks.
type Service interface {
	CreateIntent(ctx context.Context, input CreateIntentInput) (*models.PaymentTransaction, error)
	Authorize(ctx context.Context, paymentIntentID string) (*models.PaymentTransaction, error)
	Capture(ctx context.Context, paymentIntentID string) (*models.PaymentTransaction, error)
	HandleWebhook(ctx context.Context, event WebhookEvent) (*WebhookResult, error)
}

// ServiceParams bundles the dependencies required to build a payments service.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Provider  Provider
	Forwarder StatusForwarder
	Cache     *idempotency.Cache
	Metrics   webhookMetrics
	Logger    *logger.Logger
	Clock     func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	provider  Provider
	forwarder StatusForwarder
	cache     *idempotency.Cache
	metrics   webhookMetrics
	logg      *logger.Logger
	now       func() time.Time
}

type noopMetrics struct{}

func (noopMetrics) Inc(string, string) {}

// NewService constructs a payments service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("payment provider is required")
	}
	if params.Forwarder == nil {
		return nil, fmt.Errorf("pledge status forwarder is required")
	}
	svc := &service{
		repo:      params.Repo,
		tx:        params.Tx,
		provider:  params.Provider,
		forwarder: params.Forwarder,
		cache:     params.Cache,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       params.Clock,
	}
	if svc.cache == nil {
		svc.cache = idempotency.Disabled()
	}
	if svc.metrics == nil {
		svc.metrics = noopMetrics{}
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

func (s *service) CreateIntent(ctx context.Context, input CreateIntentInput) (*models.PaymentTransaction, error) {
	pledgeID := strings.TrimSpace(input.PledgeID)
	details := map[string]string{}
	if pledgeID == "" {
		details["pledgeId"] = "is required"
	}
	if input.Amount <= 0 {
		details["amount"] = "must be greater than 0"
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment intent request").WithDetails(details)
	}

	txn := &models.PaymentTransaction{
		PledgeID:        pledgeID,
		PaymentIntentID: s.provider.CreateIntent(input.Amount),
		Amount:          input.Amount,
		Status:          enums.PaymentTransactionPending,
	}
	if err := s.repo.CreateTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment transaction")
	}

	logCtx := s.logg.WithFields(s.logg.WithPledgeID(ctx, pledgeID), map[string]any{
		"payment_intent_id": txn.PaymentIntentID,
		"amount":            txn.Amount,
	})
	s.logg.Info(logCtx, "payment intent created")
	return txn, nil
}

func (s *service) Authorize(ctx context.Context, paymentIntentID string) (*models.PaymentTransaction, error) {
	txn, err := s.loadTransaction(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	s.provider.Authorize(*txn)
	s.logg.Info(s.logg.WithField(ctx, "payment_intent_id", txn.PaymentIntentID), "payment authorization initiated")
	return txn, nil
}

func (s *service) Capture(ctx context.Context, paymentIntentID string) (*models.PaymentTransaction, error) {
	txn, err := s.loadTransaction(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	s.provider.Capture(*txn)
	s.logg.Info(s.logg.WithField(ctx, "payment_intent_id", txn.PaymentIntentID), "payment capture initiated")
	return txn, nil
}

func (s *service) loadTransaction(ctx context.Context, paymentIntentID string) (*models.PaymentTransaction, error) {
	intentID := strings.TrimSpace(paymentIntentID)
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paymentIntentId is required")
	}
	txn, err := s.repo.FindByIntentID(ctx, intentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
	}
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}
	return txn, nil
}
