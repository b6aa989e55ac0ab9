package enums

import "testing"

func TestParsePledgeStatusIsExact(t *testing.T) {
	got, err := ParsePledgeStatus(" CAPTURED ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != PledgeStatusCaptured {
		t.Fatalf("expected CAPTURED, got %s", got)
	}
	for _, raw := range []string{"captured", "Captured", "REFUNDED"} {
		if _, err := ParsePledgeStatus(raw); err == nil {
			t.Fatalf("expected %q to fail", raw)
		}
	}
}

func TestPaymentEventTypeMapping(t *testing.T) {
	cases := map[PaymentEventType]PaymentTransactionStatus{
		PaymentEventAuthorized:        PaymentTransactionAuthorized,
		PaymentEventCaptured:          PaymentTransactionCaptured,
		PaymentEventFailed:            PaymentTransactionFailed,
		PaymentEventType("payment.x"): PaymentTransactionPending,
	}
	for event, want := range cases {
		if got := event.TransactionStatus(); got != want {
			t.Fatalf("%s: expected %s, got %s", event, want, got)
		}
	}
}

func TestTransactionStatusForwardsAsPledgeStatus(t *testing.T) {
	if got := PaymentTransactionAuthorized.PledgeStatus(); got != PledgeStatusAuthorized {
		t.Fatalf("expected AUTHORIZED, got %s", got)
	}
	if PaymentTransactionPending.PledgeStatus() != PledgeStatusPending {
		t.Fatal("expected pending to forward as PENDING")
	}
}

func TestOutboxEventTypes(t *testing.T) {
	if !EventPledgeCaptured.IsValid() {
		t.Fatal("expected pledge.captured to be valid")
	}
	if _, err := ParseOutboxEventType("order_created"); err == nil {
		t.Fatal("expected unknown event type to fail")
	}
}
