package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/careforall-backend/pkg/enums"
)

// ReconciliationLog records every event applied to a campaign aggregate.
// EventID is derived from the event type and pledge id.
type ReconciliationLog struct {
	ID          uuid.UUID                     `gorm:"column:id;type:uuid;primaryKey"`
	EventID     string                        `gorm:"column:event_id;not null;uniqueIndex:ux_reconciliation_logs_event_id"`
	CampaignID  string                        `gorm:"column:campaign_id;not null;index"`
	PledgeID    string                        `gorm:"column:pledge_id;not null"`
	Amount      int64                         `gorm:"column:amount;not null"`
	Operation   enums.ReconciliationOperation `gorm:"column:operation;not null"`
	ProcessedAt time.Time                     `gorm:"column:processed_at;not null"`
}

func (r *ReconciliationLog) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
