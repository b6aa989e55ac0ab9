package controllers

import (
	"net/http"

	"github.com/angelmondragon/careforall-backend/api/responses"
	"github.com/angelmondragon/careforall-backend/api/validators"
	"github.com/angelmondragon/careforall-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/careforall-backend/pkg/errors"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
)

type paymentIntentRequest struct {
	PledgeID string `json:"pledgeId" validate:"required,uuid4"`
	Amount   int64  `json:"amount" validate:"gt=0"`
}

type paymentActionRequest struct {
	PaymentIntentID string `json:"paymentIntentId" validate:"required"`
}

// PaymentIntentCreate handles POST /payments/intent.
func PaymentIntentCreate(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		var body paymentIntentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := svc.CreateIntent(r.Context(), payments.CreateIntentInput{PledgeID: body.PledgeID, Amount: body.Amount})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payments.NewTransactionDTO(txn))
	}
}

// PaymentAuthorize handles POST /payments/authorize. The provider confirms
// asynchronously through the webhook, so the response is 202.
func PaymentAuthorize(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return paymentAction(svc, logg, func(r *http.Request, intentID string) (any, error) {
		txn, err := svc.Authorize(r.Context(), intentID)
		if err != nil {
			return nil, err
		}
		return payments.NewTransactionDTO(txn), nil
	})
}

// PaymentCapture handles POST /payments/capture.
func PaymentCapture(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return paymentAction(svc, logg, func(r *http.Request, intentID string) (any, error) {
		txn, err := svc.Capture(r.Context(), intentID)
		if err != nil {
			return nil, err
		}
		return payments.NewTransactionDTO(txn), nil
	})
}

func paymentAction(svc payments.Service, logg *logger.Logger, run func(r *http.Request, intentID string) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		var body paymentActionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := run(r, body.PaymentIntentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, out)
	}
}

// PaymentWebhook handles POST /payments/webhooks. Redeliveries of a logged
// webhook id answer 200 with duplicate=true.
func PaymentWebhook(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		var event payments.WebhookEvent
		if err := validators.DecodeJSONBody(r, &event, true); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.HandleWebhook(r.Context(), event)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
