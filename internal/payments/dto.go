package payments

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/careforall-backend/pkg/db/models"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
)

// CreateIntentInput starts a payment for a pledge.
type CreateIntentInput struct {
	PledgeID string
	Amount   int64
}

// WebhookData is the provider-specific part of a callback. Raw keeps the
// object exactly as received, including fields not modelled here.
type WebhookData struct {
	PaymentIntentID string          `json:"paymentIntentId"`
	PledgeID        string          `json:"pledgeId"`
	Raw             json.RawMessage `json:"-"`
}

type webhookDataFields WebhookData

func (d *WebhookData) UnmarshalJSON(b []byte) error {
	var fields webhookDataFields
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*d = WebhookData(fields)
	d.Raw = append(json.RawMessage(nil), b...)
	return nil
}

func (d WebhookData) MarshalJSON() ([]byte, error) {
	if len(d.Raw) > 0 {
		return d.Raw, nil
	}
	return json.Marshal(webhookDataFields(d))
}

// WebhookEvent is the callback body the payment provider posts.
type WebhookEvent struct {
	ID   string       `json:"id"`
	Type string       `json:"type"`
	Data *WebhookData `json:"data"`
}

// WebhookResult describes how a webhook was absorbed.
type WebhookResult struct {
	WebhookID       string                         `json:"webhookId"`
	PaymentIntentID string                         `json:"paymentIntentId,omitempty"`
	Status          enums.PaymentTransactionStatus `json:"status,omitempty"`
	Duplicate       bool                           `json:"duplicate"`
}

// TransactionDTO is the API representation of a payment transaction.
type TransactionDTO struct {
	ID              string                         `json:"id"`
	PledgeID        string                         `json:"pledgeId"`
	PaymentIntentID string                         `json:"paymentIntentId"`
	Amount          int64                          `json:"amount"`
	Status          enums.PaymentTransactionStatus `json:"status"`
	CreatedAt       time.Time                      `json:"createdAt"`
	UpdatedAt       time.Time                      `json:"updatedAt"`
}

// NewTransactionDTO maps the persisted transaction.
func NewTransactionDTO(txn *models.PaymentTransaction) TransactionDTO {
	return TransactionDTO{
		ID:              txn.ID.String(),
		PledgeID:        txn.PledgeID,
		PaymentIntentID: txn.PaymentIntentID,
		Amount:          txn.Amount,
		Status:          txn.Status,
		CreatedAt:       txn.CreatedAt,
		UpdatedAt:       txn.UpdatedAt,
	}
}
