package enums

import (
	"fmt"
	"strings"
)

// PaymentTransactionStatus mirrors the provider-side state of a payment intent.
type PaymentTransactionStatus string

const (
	PaymentTransactionPending    PaymentTransactionStatus = "pending"
	PaymentTransactionAuthorized PaymentTransactionStatus = "authorized"
	PaymentTransactionCaptured   PaymentTransactionStatus = "captured"
	PaymentTransactionFailed     PaymentTransactionStatus = "failed"
)

var validPaymentTransactionStatuses = []PaymentTransactionStatus{
	PaymentTransactionPending,
	PaymentTransactionAuthorized,
	PaymentTransactionCaptured,
	PaymentTransactionFailed,
}

// String implements fmt.Stringer.
func (p PaymentTransactionStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentTransactionStatus.
func (p PaymentTransactionStatus) IsValid() bool {
	for _, candidate := range validPaymentTransactionStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// PledgeStatus is the pledge lifecycle status a transaction status is forwarded as.
func (p PaymentTransactionStatus) PledgeStatus() PledgeStatus {
	return PledgeStatus(strings.ToUpper(string(p)))
}

// PaymentEventType is the type field of an inbound provider webhook.
type PaymentEventType string

const (
	PaymentEventAuthorized PaymentEventType = "payment.authorized"
	PaymentEventCaptured   PaymentEventType = "payment.captured"
	PaymentEventFailed     PaymentEventType = "payment.failed"
)

// TransactionStatus maps a provider event onto a transaction status. Unknown
// event types map to pending instead of failing.
func (e PaymentEventType) TransactionStatus() PaymentTransactionStatus {
	switch e {
	case PaymentEventAuthorized:
		return PaymentTransactionAuthorized
	case PaymentEventCaptured:
		return PaymentTransactionCaptured
	case PaymentEventFailed:
		return PaymentTransactionFailed
	default:
		return PaymentTransactionPending
	}
}

// ParsePaymentEventType accepts only the event types the mock provider emits.
func ParsePaymentEventType(value string) (PaymentEventType, error) {
	switch PaymentEventType(value) {
	case PaymentEventAuthorized, PaymentEventCaptured, PaymentEventFailed:
		return PaymentEventType(value), nil
	}
	return "", fmt.Errorf("invalid payment event type %q", value)
}
