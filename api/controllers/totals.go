package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/careforall-backend/api/responses"
	"github.com/angelmondragon/careforall-backend/internal/totals"
	pkgerrors "github.com/angelmondragon/careforall-backend/pkg/errors"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
)

// CampaignTotals handles GET /totals/{campaignId}. Campaigns with no captured
// pledges yet answer with a zero aggregate.
func CampaignTotals(svc totals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "totals service unavailable"))
			return
		}
		total, err := svc.Get(r.Context(), chi.URLParam(r, "campaignId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, total)
	}
}
