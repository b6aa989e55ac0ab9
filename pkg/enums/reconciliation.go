package enums

// ReconciliationOperation records how an event changed a campaign aggregate.
type ReconciliationOperation string

const (
	ReconciliationAdd      ReconciliationOperation = "add"
	ReconciliationSubtract ReconciliationOperation = "subtract"
)
