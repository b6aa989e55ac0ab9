package payloads

import "github.com/angelmondragon/careforall-backend/pkg/enums"

// PledgeCreatedEvent is emitted with every newly created pledge.
type PledgeCreatedEvent struct {
	PledgeID   string             `json:"pledgeId"`
	CampaignID string             `json:"campaignId"`
	Amount     int64              `json:"amount"`
	DonorID    *string            `json:"donorId,omitempty"`
	SessionID  *string            `json:"sessionId,omitempty"`
	Status     enums.PledgeStatus `json:"status"`
}

// PledgeCapturedEvent is emitted when a pledge's funds are captured. It is the
// only event the totals read model consumes.
type PledgeCapturedEvent struct {
	PledgeID   string             `json:"pledgeId"`
	CampaignID string             `json:"campaignId"`
	Amount     int64              `json:"amount"`
	Status     enums.PledgeStatus `json:"status"`
}
