package totals

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/careforall-backend/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages the campaign aggregate and its reconciliation ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindTotal(ctx context.Context, campaignID string) (*models.CampaignTotal, error)
	ApplyDelta(ctx context.Context, campaignID string, amount, pledges int64, at time.Time) error
	HasReconciliation(ctx context.Context, eventID string) (bool, error)
	CreateReconciliation(ctx context.Context, entry *models.ReconciliationLog) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a totals repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindTotal returns nil without error when nothing was recorded for the campaign.
func (r *repository) FindTotal(ctx context.Context, campaignID string) (*models.CampaignTotal, error) {
	var total models.CampaignTotal
	if err := r.db.WithContext(ctx).Where("campaign_id = ?", campaignID).First(&total).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &total, nil
}

// ApplyDelta upserts the aggregate, incrementing the stored counters.
func (r *repository) ApplyDelta(ctx context.Context, campaignID string, amount, pledges int64, at time.Time) error {
	row := models.CampaignTotal{
		CampaignID:   campaignID,
		TotalAmount:  amount,
		TotalPledges: pledges,
		LastUpdated:  at,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "campaign_id"}},
			DoUpdates: clause.Set{
				{Column: clause.Column{Name: "total_amount"}, Value: gorm.Expr("campaign_totals.total_amount + ?", amount)},
				{Column: clause.Column{Name: "total_pledges"}, Value: gorm.Expr("campaign_totals.total_pledges + ?", pledges)},
				{Column: clause.Column{Name: "last_updated"}, Value: at},
			},
		}).
		Create(&row).Error
}

func (r *repository) HasReconciliation(ctx context.Context, eventID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.ReconciliationLog{}).
		Where("event_id = ?", eventID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) CreateReconciliation(ctx context.Context, entry *models.ReconciliationLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
