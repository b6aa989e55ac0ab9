package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/careforall-backend/api/middleware"
	"github.com/angelmondragon/careforall-backend/api/responses"
	"github.com/angelmondragon/careforall-backend/api/validators"
	"github.com/angelmondragon/careforall-backend/internal/pledges"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/careforall-backend/pkg/errors"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	maxIdempotencyKeyLen = 255
)

// donorId may be omitted alongside sessionId when a bearer token supplies the
// donor, so the either-or rule is enforced by the pledge service.
type pledgeCreateRequest struct {
	CampaignID string  `json:"campaignId" validate:"required,max=255"`
	Amount     int64   `json:"amount" validate:"gt=0"`
	DonorID    *string `json:"donorId,omitempty" validate:"omitempty,max=255,excluded_with=SessionID"`
	SessionID  *string `json:"sessionId,omitempty" validate:"omitempty,max=255"`
}

type pledgeStatusRequest struct {
	NewStatus string `json:"newStatus" validate:"required"`
}

// PledgeCreate handles POST /pledges. A replayed idempotency key answers 200
// with the original pledge instead of 201.
func PledgeCreate(svc pledges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pledge service unavailable"))
			return
		}

		key, err := validators.HeaderValue(idempotencyKeyHeader, r.Header.Get(idempotencyKeyHeader), maxIdempotencyKeyLen)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body pledgeCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := pledges.CreatePledgeInput{
			IdempotencyKey: key,
			CampaignID:     body.CampaignID,
			Amount:         body.Amount,
			DonorID:        body.DonorID,
			SessionID:      body.SessionID,
		}
		if principal, ok := middleware.PrincipalFromContext(r.Context()); ok {
			if input.DonorID == nil && input.SessionID == nil {
				donor := principal.UserID
				input.DonorID = &donor
			} else if input.DonorID != nil && principal.Role != enums.RoleAdmin && strings.TrimSpace(*input.DonorID) != principal.UserID {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "donorId does not match the authenticated user"))
				return
			}
		}

		pledge, created, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, pledges.NewPledgeDTO(pledge))
	}
}

// PledgeGet handles GET /pledges/{pledgeId}.
func PledgeGet(svc pledges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pledge service unavailable"))
			return
		}
		pledge, err := svc.Get(r.Context(), chi.URLParam(r, "pledgeId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pledges.NewPledgeDTO(pledge))
	}
}

// PledgeUpdateStatus handles PATCH /internal/pledges/{pledgeId}/status.
func PledgeUpdateStatus(svc pledges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pledge service unavailable"))
			return
		}

		var body pledgeStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pledge, err := svc.UpdateStatus(r.Context(), chi.URLParam(r, "pledgeId"), body.NewStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pledges.NewPledgeDTO(pledge))
	}
}
