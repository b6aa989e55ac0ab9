package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/careforall-backend/pkg/enums"
)

// PaymentTransaction mirrors a provider payment intent for one pledge.
type PaymentTransaction struct {
	ID              uuid.UUID                      `gorm:"column:id;type:uuid;primaryKey"`
	PledgeID        string                         `gorm:"column:pledge_id;not null;index"`
	PaymentIntentID string                         `gorm:"column:payment_intent_id;not null;uniqueIndex:ux_payment_transactions_intent"`
	Amount          int64                          `gorm:"column:amount;not null"`
	Status          enums.PaymentTransactionStatus `gorm:"column:status;not null;default:'pending'"`
	CreatedAt       time.Time                      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                      `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *PaymentTransaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
