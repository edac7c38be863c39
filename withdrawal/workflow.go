package withdrawal

import (
	"fmt"

	"github.com/clintonochieng072-gif/affiliate-settlement/models"
)

// allowedTransitions defines the withdrawal state machine. No entry may
// regress from a terminal state; the pending→completed edge exists so a
// result callback can still settle an entry that a timeout callback returned
// to pending.
var allowedTransitions = map[models.WithdrawalStatus][]models.WithdrawalStatus{
	models.WithdrawalPending: {
		models.WithdrawalProcessing,
		models.WithdrawalCompleted,
		models.WithdrawalFailed,
	},
	models.WithdrawalProcessing: {
		models.WithdrawalCompleted,
		models.WithdrawalFailed,
		// A timeout callback parks the entry back in pending until the
		// provider delivers a verdict.
		models.WithdrawalPending,
	},
}

// ValidateTransition ensures the transition follows the defined state machine.
func ValidateTransition(current, next models.WithdrawalStatus) error {
	if current == next {
		return nil
	}
	allowed, ok := allowedTransitions[current]
	if !ok {
		return fmt.Errorf("withdrawal: no transitions allowed from %s", current)
	}
	for _, status := range allowed {
		if status == next {
			return nil
		}
	}
	return fmt.Errorf("withdrawal: transition from %s to %s is not permitted", current, next)
}
