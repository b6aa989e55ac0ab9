package pledges

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
	"github.com/angelmondragon/careforall-backend/pkg/outbox"
	"github.com/angelmondragon/careforall-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const idempotencyConstraint = "ux_pledges_idempotency_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CampaignLookup confirms a campaign exists. Implementations return a
// NOT_FOUND error when it does not.
type CampaignLookup interface {
	EnsureExists(ctx context.Context, campaignID string) error
}

// Service owns pledge records and their lifecycle.
type Service interface {
	// Create returns the pledge for the idempotency key and whether this call
	// created it.
	Create(ctx context.Context, input CreatePledgeInput) (*models.Pledge, bool, error)
	Get(ctx context.Context, id string) (*models.Pledge, error)
	UpdateStatus(ctx context.Context, id string, newStatus string) (*models.Pledge, error)
}

// ServiceParams bundles the dependencies required to build a pledge service.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outbox.Writer
	Campaigns CampaignLookup
	Cache     *idempotency.Cache
	Logger    *logger.Logger
	Clock     func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outbox.Writer
	campaigns CampaignLookup
	cache     *idempotency.Cache
	logg      *logger.Logger
	now       func() time.Time
}

// NewService constructs a pledge service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("pledge repository is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox writer is required")
	}
	if params.Campaigns == nil {
		return nil, fmt.Errorf("campaign lookup is required")
	}
	cache := params.Cache
	if cache == nil {
		cache = idempotency.Disabled()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		campaigns: params.Campaigns,
		cache:     cache,
		logg:      logg,
		now:       clock,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreatePledgeInput) (*models.Pledge, bool, error) {
	input, err := normalizeCreateInput(input)
	if err != nil {
		return nil, false, err
	}

	if err := s.campaigns.EnsureExists(ctx, input.CampaignID); err != nil {
		return nil, false, err
	}

	if existing, err := s.findExisting(ctx, input.IdempotencyKey); err != nil {
		return nil, false, err
	} else if existing != nil {
		s.logg.Info(s.logg.WithPledgeID(ctx, existing.ID.String()), "pledge replayed for idempotency key")
		return existing, false, nil
	}

	pledge := &models.Pledge{
		ID:             uuid.New(),
		IdempotencyKey: input.IdempotencyKey,
		CampaignID:     input.CampaignID,
		DonorID:        input.DonorID,
		SessionID:      input.SessionID,
		Amount:         input.Amount,
		Status:         enums.PledgeStatusPending,
		StateHistory:   datatypes.JSONSlice[models.StateTransition]{},
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, pledge); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPledgeCreated,
			AggregateType: enums.AggregatePledge,
			AggregateID:   pledge.ID,
			Actor:         actorFor(pledge),
			Data: payloads.PledgeCreatedEvent{
				PledgeID:   pledge.ID.String(),
				CampaignID: pledge.CampaignID,
				Amount:     pledge.Amount,
				DonorID:    pledge.DonorID,
				SessionID:  pledge.SessionID,
				Status:     pledge.Status,
			},
		})
	})
	if err != nil {
		if !db.IsUniqueViolation(err, idempotencyConstraint) {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create pledge")
		}
		winner, findErr := s.repo.FindByIdempotencyKey(ctx, input.IdempotencyKey)
		if findErr != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "load pledge after idempotency conflict")
		}
		if winner == nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "idempotency conflict without winning pledge")
		}
		s.cache.Remember(ctx, idempotency.ScopePledgeKey, input.IdempotencyKey, winner.ID.String())
		s.logg.Info(s.logg.WithPledgeID(ctx, winner.ID.String()), "pledge creation lost idempotency race")
		return winner, false, nil
	}

	s.cache.Remember(ctx, idempotency.ScopePledgeKey, input.IdempotencyKey, pledge.ID.String())
	logCtx := s.logg.WithFields(s.logg.WithPledgeID(ctx, pledge.ID.String()), map[string]any{
		"campaign_id": pledge.CampaignID,
		"amount":      pledge.Amount,
	})
	s.logg.Info(logCtx, "pledge created")
	return pledge, true, nil
}

// findExisting consults the cache first and falls back to the unique key.
func (s *service) findExisting(ctx context.Context, key string) (*models.Pledge, error) {
	if cached, ok := s.cache.Lookup(ctx, idempotency.ScopePledgeKey, key); ok {
		if id, err := uuid.Parse(cached); err == nil {
			pledge, err := s.repo.FindByID(ctx, id)
			if err == nil && pledge.IdempotencyKey == key {
				return pledge, nil
			}
			if err != nil && !db.IsNotFound(err) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cached pledge")
			}
		}
		s.cache.Forget(ctx, idempotency.ScopePledgeKey, key)
	}

	existing, err := s.repo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup idempotency key")
	}
	if existing != nil {
		s.cache.Remember(ctx, idempotency.ScopePledgeKey, key, existing.ID.String())
	}
	return existing, nil
}

func (s *service) Get(ctx context.Context, id string) (*models.Pledge, error) {
	pledgeID, err := parsePledgeID(id)
	if err != nil {
		return nil, err
	}
	pledge, err := s.repo.FindByID(ctx, pledgeID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pledge not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "get pledge")
	}
	return pledge, nil
}

func (s *service) UpdateStatus(ctx context.Context, id string, newStatus string) (*models.Pledge, error) {
	pledgeID, err := parsePledgeID(id)
	if err != nil {
		return nil, err
	}

	var updated *models.Pledge
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		pledge, err := repo.FindByIDForUpdate(ctx, pledgeID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "pledge not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load pledge")
		}

		next, parseErr := enums.ParsePledgeStatus(newStatus)
		if parseErr != nil {
			return InvalidTransitionError(pledge.Status, newStatus)
		}

		previous := pledge.Status
		now := s.now().UTC()
		if err := ApplyTransition(pledge, next, now); err != nil {
			return err
		}
		pledge.UpdatedAt = now

		ok, err := repo.CompareAndSetStatus(ctx, pledge, previous)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update pledge status")
		}
		if !ok {
			current, err := repo.FindByID(ctx, pledgeID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload pledge")
			}
			return InvalidTransitionError(current.Status, string(next))
		}

		if next == enums.PledgeStatusCaptured {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPledgeCaptured,
				AggregateType: enums.AggregatePledge,
				AggregateID:   pledge.ID,
				Data: payloads.PledgeCapturedEvent{
					PledgeID:   pledge.ID.String(),
					CampaignID: pledge.CampaignID,
					Amount:     pledge.Amount,
					Status:     pledge.Status,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stage pledge captured event")
			}
		}

		updated = pledge
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithPledgeID(ctx, updated.ID.String()), map[string]any{
		"from": updated.StateHistory[len(updated.StateHistory)-1].From,
		"to":   updated.Status,
	})
	s.logg.Info(logCtx, "pledge status updated")
	return updated, nil
}

func normalizeCreateInput(input CreatePledgeInput) (CreatePledgeInput, error) {
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	input.CampaignID = strings.TrimSpace(input.CampaignID)
	input.DonorID = trimmedOrNil(input.DonorID)
	input.SessionID = trimmedOrNil(input.SessionID)

	details := map[string]string{}
	if input.IdempotencyKey == "" {
		details["Idempotency-Key"] = "header is required"
	}
	if input.CampaignID == "" {
		details["campaignId"] = "is required"
	}
	if input.Amount <= 0 {
		details["amount"] = "must be greater than 0"
	}
	switch {
	case input.DonorID == nil && input.SessionID == nil:
		details["donorId"] = "either donorId or sessionId is required"
	case input.DonorID != nil && input.SessionID != nil:
		details["donorId"] = "donorId and sessionId are mutually exclusive"
	}
	if len(details) > 0 {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "invalid pledge request").WithDetails(details)
	}
	return input, nil
}

func parsePledgeID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid pledge id")
	}
	return id, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func actorFor(p *models.Pledge) *outbox.ActorRef {
	if p.DonorID == nil {
		return nil
	}
	return &outbox.ActorRef{UserID: *p.DonorID, Role: string(enums.RoleDonor)}
}
