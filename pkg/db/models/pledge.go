package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/careforall-backend/pkg/enums"
)

// StateTransition is one accepted status change in a pledge's history.
type StateTransition struct {
	From      enums.PledgeStatus `json:"from"`
	To        enums.PledgeStatus `json:"to"`
	Timestamp time.Time          `json:"timestamp"`
}

// Pledge is a donor's commitment to a campaign. CampaignID is an opaque
// reference owned by the campaign service.
type Pledge struct {
	ID             uuid.UUID                            `gorm:"column:id;type:uuid;primaryKey"`
	IdempotencyKey string                               `gorm:"column:idempotency_key;not null;uniqueIndex:ux_pledges_idempotency_key"`
	CampaignID     string                               `gorm:"column:campaign_id;not null;index"`
	DonorID        *string                              `gorm:"column:donor_id"`
	SessionID      *string                              `gorm:"column:session_id"`
	Amount         int64                                `gorm:"column:amount;not null"`
	Status         enums.PledgeStatus                   `gorm:"column:status;not null;default:'PENDING'"`
	StateHistory   datatypes.JSONSlice[StateTransition] `gorm:"column:state_history;type:jsonb;not null"`
	CreatedAt      time.Time                            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                            `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Pledge) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.StateHistory == nil {
		p.StateHistory = datatypes.JSONSlice[StateTransition]{}
	}
	return nil
}
