package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookLog is the dedup ledger for provider callbacks.
type WebhookLog struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	WebhookID   string         `gorm:"column:webhook_id;not null;uniqueIndex:ux_webhook_logs_webhook_id"`
	EventType   string         `gorm:"column:event_type;not null"`
	PledgeID    string         `gorm:"column:pledge_id;not null"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb;not null"`
	Processed   bool           `gorm:"column:processed;not null;default:false"`
	ProcessedAt *time.Time     `gorm:"column:processed_at"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (w *WebhookLog) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
