package models

import "time"

// CampaignTotal is the read-model aggregate of captured pledges per campaign.
type CampaignTotal struct {
	CampaignID   string    `gorm:"column:campaign_id;primaryKey"`
	TotalAmount  int64     `gorm:"column:total_amount;not null;default:0"`
	TotalPledges int64     `gorm:"column:total_pledges;not null;default:0"`
	LastUpdated  time.Time `gorm:"column:last_updated;not null"`
}
