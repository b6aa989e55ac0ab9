package payments

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/angelmondragon/careforall-backend/pkg/db"
	"github.com/angelmondragon/careforall-backend/pkg/db/models"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/careforall-backend/pkg/errors"
	"github.com/angelmondragon/careforall-backend/pkg/idempotency"
	"github.com/angelmondragon/careforall-backend/pkg/metrics"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const webhookConstraint = "ux_webhook_logs_webhook_id"

// HandleWebhook applies a provider callback at most once per webhook id. The
// transaction status and the ledger row commit together; the pledge status
// push happens after commit and never fails the webhook.
func (s *service) HandleWebhook(ctx context.Context, event WebhookEvent) (*WebhookResult, error) {
	event.ID = strings.TrimSpace(event.ID)
	event.Type = strings.TrimSpace(event.Type)
	if event.ID == "" || event.Type == "" || event.Data == nil {
		s.metrics.Inc(metricEventType(event.Type), metrics.StatusError)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid webhook payload").WithDetails(map[string]string{
			"required": "id, type, data",
		})
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"webhook_id": event.ID,
		"event_type": event.Type,
	})

	duplicate, err := s.alreadyProcessed(ctx, event.ID)
	if err != nil {
		s.metrics.Inc(event.Type, metrics.StatusError)
		return nil, err
	}
	if duplicate {
		return s.duplicate(ctx, event), nil
	}

	status := enums.PaymentEventType(event.Type).TransactionStatus()
	var txn *models.PaymentTransaction
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByIntentIDForUpdate(ctx, event.Data.PaymentIntentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
		}

		payload, err := json.Marshal(event.Data)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode webhook payload")
		}
		processedAt := s.now().UTC()
		if err := repo.CreateWebhookLog(ctx, &models.WebhookLog{
			WebhookID:   event.ID,
			EventType:   event.Type,
			PledgeID:    event.Data.PledgeID,
			Payload:     datatypes.JSON(payload),
			Processed:   true,
			ProcessedAt: &processedAt,
		}); err != nil {
			return err
		}

		if err := repo.UpdateStatus(ctx, found.ID, status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment transaction")
		}
		found.Status = status
		txn = found
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, webhookConstraint) {
			s.cache.Remember(ctx, idempotency.ScopeWebhook, event.ID, "")
			return s.duplicate(ctx, event), nil
		}
		s.metrics.Inc(event.Type, metrics.StatusError)
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "process webhook")
		}
		return nil, err
	}

	s.cache.Remember(ctx, idempotency.ScopeWebhook, event.ID, "")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_intent_id": txn.PaymentIntentID,
		"status":            status,
	}), "webhook processed")

	s.forward(ctx, event, txn, status)
	s.metrics.Inc(event.Type, metrics.StatusSuccess)

	return &WebhookResult{
		WebhookID:       event.ID,
		PaymentIntentID: txn.PaymentIntentID,
		Status:          status,
	}, nil
}

func (s *service) alreadyProcessed(ctx context.Context, webhookID string) (bool, error) {
	if s.cache.Seen(ctx, idempotency.ScopeWebhook, webhookID) {
		return true, nil
	}
	entry, err := s.repo.FindWebhookLog(ctx, webhookID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup webhook log")
	}
	if entry == nil || !entry.Processed {
		return false, nil
	}
	s.cache.Remember(ctx, idempotency.ScopeWebhook, webhookID, "")
	return true, nil
}

func (s *service) duplicate(ctx context.Context, event WebhookEvent) *WebhookResult {
	s.logg.Info(ctx, "webhook already processed")
	s.metrics.Inc(event.Type, metrics.StatusDuplicate)
	return &WebhookResult{
		WebhookID:       event.ID,
		PaymentIntentID: event.Data.PaymentIntentID,
		Duplicate:       true,
	}
}

// forward is best effort: failures are logged with enough context to
// reconcile the pledge by hand.
func (s *service) forward(ctx context.Context, event WebhookEvent, txn *models.PaymentTransaction, status enums.PaymentTransactionStatus) {
	if status == enums.PaymentTransactionPending {
		s.logg.Debug(ctx, "neutral webhook status, pledge left unchanged")
		return
	}
	pledgeID := strings.TrimSpace(event.Data.PledgeID)
	if pledgeID == "" {
		pledgeID = txn.PledgeID
	}
	target := status.PledgeStatus()
	fwdCtx := s.logg.WithFields(s.logg.WithPledgeID(ctx, pledgeID), map[string]any{"target_status": target})

	if err := s.forwarder.Forward(ctx, pledgeID, target); err != nil {
		s.logg.Warn(s.logg.WithField(fwdCtx, "error", err.Error()), "pledge status forward failed")
		return
	}
	s.logg.Info(fwdCtx, "pledge status forwarded")
}

func metricEventType(eventType string) string {
	if eventType == "" {
		return "unknown"
	}
	return eventType
}
