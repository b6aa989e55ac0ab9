package pledges

import (
	"fmt"
	"time"

	"github.com/angelmondragon/careforall-backend/pkg/db/models"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/careforall-backend/pkg/errors"
)

// allowedTransitions maps each status to its permitted successors. Terminal
// statuses have no entry.
var allowedTransitions = map[enums.PledgeStatus][]enums.PledgeStatus{
	enums.PledgeStatusPending:    {enums.PledgeStatusAuthorized, enums.PledgeStatusFailed},
	enums.PledgeStatusAuthorized: {enums.PledgeStatusCaptured, enums.PledgeStatusFailed},
	enums.PledgeStatusCaptured:   {enums.PledgeStatusCompleted},
}

// CanTransition reports whether next is a permitted successor of current.
func CanTransition(current, next enums.PledgeStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status permits no further transitions.
func IsTerminal(status enums.PledgeStatus) bool {
	return status.IsValid() && len(allowedTransitions[status]) == 0
}

// InvalidTransitionError names the rejected (current, requested) pair.
func InvalidTransitionError(current enums.PledgeStatus, requested string) *pkgerrors.Error {
	return pkgerrors.New(
		pkgerrors.CodeTransition,
		fmt.Sprintf("Invalid state transition from %s to %s", current, requested),
	).WithDetails(map[string]any{
		"from": current,
		"to":   requested,
	})
}

// ApplyTransition moves the pledge to next and appends the history entry.
// The pledge is left untouched when the transition is rejected.
func ApplyTransition(pledge *models.Pledge, next enums.PledgeStatus, at time.Time) error {
	if pledge == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "pledge required")
	}
	if !CanTransition(pledge.Status, next) {
		return InvalidTransitionError(pledge.Status, string(next))
	}
	pledge.StateHistory = append(pledge.StateHistory, models.StateTransition{
		From:      pledge.Status,
		To:        next,
		Timestamp: at.UTC(),
	})
	pledge.Status = next
	return nil
}
