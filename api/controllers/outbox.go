package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/careforall-backend/api/responses"
	"github.com/angelmondragon/careforall-backend/api/validators"
	"github.com/angelmondragon/careforall-backend/pkg/db/models"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/careforall-backend/pkg/errors"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
	"github.com/angelmondragon/careforall-backend/pkg/outbox"
)

const (
	defaultFailedLimit = 50
	maxFailedLimit     = 200
)

// OutboxOperator is the operational surface over quarantined outbox rows.
type OutboxOperator interface {
	ListFailed(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	Requeue(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error)
}

type outboxEventView struct {
	ID            string                    `json:"id"`
	AggregateID   string                    `json:"aggregateId"`
	AggregateType enums.OutboxAggregateType `json:"aggregateType"`
	EventType     enums.OutboxEventType     `json:"eventType"`
	Status        enums.OutboxStatus        `json:"status"`
	RetryCount    int                       `json:"retryCount"`
	LastError     *string                   `json:"lastError,omitempty"`
	CreatedAt     time.Time                 `json:"createdAt"`
	PublishedAt   *time.Time                `json:"publishedAt,omitempty"`
}

func newOutboxEventView(e models.OutboxEvent) outboxEventView {
	return outboxEventView{
		ID:            e.ID.String(),
		AggregateID:   e.AggregateID.String(),
		AggregateType: e.AggregateType,
		EventType:     e.EventType,
		Status:        e.Status,
		RetryCount:    e.RetryCount,
		LastError:     e.LastError,
		CreatedAt:     e.CreatedAt,
		PublishedAt:   e.PublishedAt,
	}
}

// OutboxFailedList handles GET /internal/outbox/failed?limit=N.
func OutboxFailedList(ops OutboxOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ops == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "outbox operations unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultFailedLimit, 1, maxFailedLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := ops.ListFailed(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list failed outbox events"))
			return
		}
		views := make([]outboxEventView, 0, len(rows))
		for _, row := range rows {
			views = append(views, newOutboxEventView(row))
		}
		responses.WriteSuccess(w, views)
	}
}

// OutboxRequeue handles POST /internal/outbox/{eventId}/requeue.
func OutboxRequeue(ops OutboxOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ops == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "outbox operations unavailable"))
			return
		}
		id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "eventId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid outbox event id"))
			return
		}
		event, err := ops.Requeue(r.Context(), id)
		switch {
		case errors.Is(err, outbox.ErrNotFailed):
			apiErr := pkgerrors.Wrap(pkgerrors.CodeValidation, err, "outbox event is not failed")
			if event != nil {
				apiErr = apiErr.WithDetails(map[string]any{"status": event.Status})
			}
			responses.WriteError(r.Context(), logg, w, apiErr)
			return
		case err != nil:
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "requeue outbox event"))
			return
		case event == nil:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "outbox event not found"))
			return
		}
		if logg != nil {
			logg.Info(logg.WithFields(r.Context(), map[string]any{
				"outbox_id":  event.ID.String(),
				"event_type": event.EventType,
			}), "outbox event requeued")
		}
		responses.WriteSuccess(w, newOutboxEventView(*event))
	}
}
