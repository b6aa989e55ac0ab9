package pledges

import (
	"time"

	"github.com/angelmondragon/careforall-backend/pkg/db/models"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
)

// CreatePledgeInput carries a pledge request after HTTP decoding.
type CreatePledgeInput struct {
	IdempotencyKey string
	CampaignID     string
	Amount         int64
	DonorID        *string
	SessionID      *string
}

// PledgeDTO is the API representation of a pledge.
type PledgeDTO struct {
	ID             string                   `json:"id"`
	IdempotencyKey string                   `json:"idempotencyKey"`
	CampaignID     string                   `json:"campaignId"`
	DonorID        *string                  `json:"donorId"`
	SessionID      *string                  `json:"sessionId"`
	Amount         int64                    `json:"amount"`
	Status         enums.PledgeStatus       `json:"status"`
	StateHistory   []models.StateTransition `json:"stateHistory"`
	CreatedAt      time.Time                `json:"createdAt"`
	UpdatedAt      time.Time                `json:"updatedAt"`
}

// NewPledgeDTO maps the persisted pledge.
func NewPledgeDTO(p *models.Pledge) PledgeDTO {
	history := make([]models.StateTransition, 0, len(p.StateHistory))
	history = append(history, p.StateHistory...)
	return PledgeDTO{
		ID:             p.ID.String(),
		IdempotencyKey: p.IdempotencyKey,
		CampaignID:     p.CampaignID,
		DonorID:        p.DonorID,
		SessionID:      p.SessionID,
		Amount:         p.Amount,
		Status:         p.Status,
		StateHistory:   history,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}
