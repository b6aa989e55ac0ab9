package pledges

import (
	"context"
	"errors"

	"github.com/angelmondragon/careforall-backend/pkg/db/models"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages persistence for pledges.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, pledge *models.Pledge) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Pledge, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Pledge, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Pledge, error)
	CompareAndSetStatus(ctx context.Context, pledge *models.Pledge, expected enums.PledgeStatus) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a pledge repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, pledge *models.Pledge) error {
	return r.db.WithContext(ctx).Create(pledge).Error
}

// FindByID returns gorm.ErrRecordNotFound when the pledge does not exist.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Pledge, error) {
	var pledge models.Pledge
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&pledge).Error; err != nil {
		return nil, err
	}
	return &pledge, nil
}

// FindByIDForUpdate row-locks the pledge for the rest of the transaction.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Pledge, error) {
	var pledge models.Pledge
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&pledge).Error; err != nil {
		return nil, err
	}
	return &pledge, nil
}

// FindByIdempotencyKey returns nil without error when no pledge carries the key.
func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Pledge, error) {
	var pledge models.Pledge
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&pledge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pledge, nil
}

// CompareAndSetStatus persists the pledge's status and history only if the
// stored status still equals expected.
func (r *repository) CompareAndSetStatus(ctx context.Context, pledge *models.Pledge, expected enums.PledgeStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Pledge{}).
		Where("id = ? AND status = ?", pledge.ID, expected).
		Updates(map[string]any{
			"status":        pledge.Status,
			"state_history": pledge.StateHistory,
			"updated_at":    pledge.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
