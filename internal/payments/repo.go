package payments

import (
	"context"
	"errors"

	"github.com/angelmondragon/careforall-backend/pkg/db/models"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages payment transactions and the webhook dedup ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateTransaction(ctx context.Context, txn *models.PaymentTransaction) error
	FindByIntentID(ctx context.Context, paymentIntentID string) (*models.PaymentTransaction, error)
	FindByIntentIDForUpdate(ctx context.Context, paymentIntentID string) (*models.PaymentTransaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PaymentTransactionStatus) error
	FindWebhookLog(ctx context.Context, webhookID string) (*models.WebhookLog, error)
	CreateWebhookLog(ctx context.Context, entry *models.WebhookLog) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// FindByIntentID returns nil without error when the intent is unknown.
func (r *repository) FindByIntentID(ctx context.Context, paymentIntentID string) (*models.PaymentTransaction, error) {
	return r.findByIntent(r.db.WithContext(ctx), paymentIntentID)
}

func (r *repository) FindByIntentIDForUpdate(ctx context.Context, paymentIntentID string) (*models.PaymentTransaction, error) {
	return r.findByIntent(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), paymentIntentID)
}

func (r *repository) findByIntent(q *gorm.DB, paymentIntentID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := q.Where("payment_intent_id = ?", paymentIntentID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PaymentTransactionStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// FindWebhookLog returns nil without error when the webhook id was never logged.
func (r *repository) FindWebhookLog(ctx context.Context, webhookID string) (*models.WebhookLog, error) {
	var entry models.WebhookLog
	if err := r.db.WithContext(ctx).Where("webhook_id = ?", webhookID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) CreateWebhookLog(ctx context.Context, entry *models.WebhookLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
