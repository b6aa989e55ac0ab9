package models

// All lists every persisted model, in the order tests migrate them.
func All() []any {
	return []any{
		&Pledge{},
		&OutboxEvent{},
		&PaymentTransaction{},
		&WebhookLog{},
		&CampaignTotal{},
		&ReconciliationLog{},
	}
}
