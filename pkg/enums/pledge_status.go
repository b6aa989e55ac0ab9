package enums

import (
	"fmt"
	"strings"
)

// PledgeStatus is the lifecycle state of a pledge.
type PledgeStatus string

const (
	PledgeStatusPending    PledgeStatus = "PENDING"
	PledgeStatusAuthorized PledgeStatus = "AUTHORIZED"
	PledgeStatusCaptured   PledgeStatus = "CAPTURED"
	PledgeStatusCompleted  PledgeStatus = "COMPLETED"
	PledgeStatusFailed     PledgeStatus = "FAILED"
)

var validPledgeStatuses = []PledgeStatus{
	PledgeStatusPending,
	PledgeStatusAuthorized,
	PledgeStatusCaptured,
	PledgeStatusCompleted,
	PledgeStatusFailed,
}

// String implements fmt.Stringer.
func (p PledgeStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PledgeStatus.
func (p PledgeStatus) IsValid() bool {
	for _, candidate := range validPledgeStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePledgeStatus converts raw input into a PledgeStatus. Matching is exact
// apart from surrounding whitespace.
func ParsePledgeStatus(value string) (PledgeStatus, error) {
	normalized := strings.TrimSpace(value)
	for _, candidate := range validPledgeStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pledge status %q", value)
}
