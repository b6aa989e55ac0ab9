package outbox

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/careforall-backend/pkg/db/models"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
)

const maxLastErrorLen = 1024

// ErrNotFailed is returned when requeueing an event that is not quarantined.
var ErrNotFailed = errors.New("outbox event is not failed")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event *models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(event).Error
}

// FetchPendingForUpdate locks up to limit pending rows that still have retries
// left, oldest first. Rows locked by another relay are skipped.
func (r *Repository) FetchPendingForUpdate(tx *gorm.DB, limit, maxRetries int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var rows []models.OutboxEvent
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND retry_count < ?", enums.OutboxStatusPending, maxRetries).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ? AND status = ?", id, enums.OutboxStatusPending).
		Updates(map[string]any{
			"status":       enums.OutboxStatusPublished,
			"published_at": time.Now().UTC(),
			"last_error":   nil,
		}).Error
}

// RecordFailure bumps the retry count and quarantines the row once the count
// reaches maxRetries. It reports whether the row is now failed.
func (r *Repository) RecordFailure(tx *gorm.DB, event models.OutboxEvent, cause error, maxRetries int) (bool, error) {
	next := event.RetryCount + 1
	status := enums.OutboxStatusPending
	if next >= maxRetries {
		status = enums.OutboxStatusFailed
	}
	err := tx.Model(&models.OutboxEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]any{
			"retry_count": next,
			"status":      status,
			"last_error":  truncateError(cause),
		}).Error
	return status == enums.OutboxStatusFailed, err
}

// Quarantine marks a row failed without consuming its remaining retries.
func (r *Repository) Quarantine(tx *gorm.DB, id uuid.UUID, cause error) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.OutboxStatusFailed,
			"last_error": truncateError(cause),
		}).Error
}

func (r *Repository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("status = ?", enums.OutboxStatusPending).
		Count(&count).Error
	return count, err
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	var event models.OutboxEvent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *Repository) ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// ListFailed returns quarantined rows, newest first.
func (r *Repository) ListFailed(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.OutboxStatusFailed).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Requeue resets a failed row so the relay picks it up again.
func (r *Repository) Requeue(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("id = ? AND status = ?", id, enums.OutboxStatusFailed).
		Updates(map[string]any{
			"status":      enums.OutboxStatusPending,
			"retry_count": 0,
			"last_error":  nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	event, err := r.FindByID(ctx, id)
	if err != nil || event == nil {
		return event, err
	}
	if res.RowsAffected == 0 {
		return event, ErrNotFailed
	}
	return event, nil
}

func truncateError(err error) *string {
	if err == nil {
		return nil
	}
	msg := strings.ToValidUTF8(err.Error(), "\uFFFD")
	if len(msg) > maxLastErrorLen {
		// drop any rune split by the cut
		msg = strings.ToValidUTF8(msg[:maxLastErrorLen], "")
	}
	return &msg
}
