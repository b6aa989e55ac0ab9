package totals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/careforall-backend/pkg/db"
	"github.com/angelmondragon/careforall-backend/pkg/db/models"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/careforall-backend/pkg/errors"
	"github.com/angelmondragon/careforall-backend/pkg/idempotency"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
	"gorm.io/gorm"
)

const reconciliationConstraint = "ux_reconciliation_logs_event_id"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// TotalDTO is the read model returned by GET /totals/{campaignId}.
type TotalDTO struct {
	CampaignID   string     `json:"campaignId"`
	TotalAmount  int64      `json:"totalAmount"`
	TotalPledges int64      `json:"totalPledges"`
	LastUpdated  *time.Time `json:"lastUpdated"`
}

// Contribution is one captured pledge to fold into a campaign aggregate.
type Contribution struct {
	EventType  enums.OutboxEventType
	PledgeID   string
	CampaignID string
	Amount     int64
}

// EventID is the deterministic reconciliation key for the contribution.
func (c Contribution) EventID() string {
	return fmt.Sprintf("%s:%s", c.EventType, c.PledgeID)
}

// Service maintains and serves the campaign totals read model.
type Service interface {
	Get(ctx context.Context, campaignID string) (TotalDTO, error)
	// Apply folds the contribution in at most once. It reports false when the
	// contribution was already applied.
	Apply(ctx context.Context, c Contribution) (bool, error)
}

type service struct {
	repo  Repository
	tx    txRunner
	cache *idempotency.Cache
	logg  *logger.Logger
	now   func() time.Time
}

// NewService constructs a totals service. cache and logg may be nil.
func NewService(repo Repository, tx txRunner, cache *idempotency.Cache, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("totals repository is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if cache == nil {
		cache = idempotency.Disabled()
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, cache: cache, logg: logg, now: time.Now}, nil
}

func (s *service) Get(ctx context.Context, campaignID string) (TotalDTO, error) {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return TotalDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "campaign id is required")
	}
	total, err := s.repo.FindTotal(ctx, campaignID)
	if err != nil {
		return TotalDTO{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load campaign total")
	}
	if total == nil {
		return TotalDTO{CampaignID: campaignID}, nil
	}
	lastUpdated := total.LastUpdated
	return TotalDTO{
		CampaignID:   total.CampaignID,
		TotalAmount:  total.TotalAmount,
		TotalPledges: total.TotalPledges,
		LastUpdated:  &lastUpdated,
	}, nil
}

func (s *service) Apply(ctx context.Context, c Contribution) (bool, error) {
	if strings.TrimSpace(c.PledgeID) == "" || strings.TrimSpace(c.CampaignID) == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "pledge id and campaign id are required")
	}
	eventID := c.EventID()
	ctx = s.logg.WithFields(s.logg.WithPledgeID(ctx, c.PledgeID), map[string]any{
		"event_id":    eventID,
		"campaign_id": c.CampaignID,
	})

	if s.cache.Seen(ctx, idempotency.ScopeReconciliation, eventID) {
		s.logg.Info(ctx, "totals event already applied")
		return false, nil
	}
	seen, err := s.repo.HasReconciliation(ctx, eventID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup reconciliation log")
	}
	if seen {
		s.cache.Remember(ctx, idempotency.ScopeReconciliation, eventID, "")
		s.logg.Info(ctx, "totals event already applied")
		return false, nil
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateReconciliation(ctx, &models.ReconciliationLog{
			EventID:     eventID,
			CampaignID:  c.CampaignID,
			PledgeID:    c.PledgeID,
			Amount:      c.Amount,
			Operation:   enums.ReconciliationAdd,
			ProcessedAt: now,
		}); err != nil {
			return err
		}
		return repo.ApplyDelta(ctx, c.CampaignID, c.Amount, 1, now)
	})
	if err != nil {
		if db.IsUniqueViolation(err, reconciliationConstraint) {
			s.cache.Remember(ctx, idempotency.ScopeReconciliation, eventID, "")
			s.logg.Info(ctx, "totals event applied concurrently")
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply totals event")
	}

	s.cache.Remember(ctx, idempotency.ScopeReconciliation, eventID, "")
	s.logg.Info(s.logg.WithField(ctx, "amount", c.Amount), "campaign totals updated")
	return true, nil
}
