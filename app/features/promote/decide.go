package promote

import (
	"fmt"

	"github.com/AntonStoeckl/lending-daemon-go/app/core"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// Decide promotes the earliest waiting entry when a copy is unreserved.
// It returns an IdempotentDecision when there is nothing to promote.
func Decide(state core.ItemState, command Command) core.DecisionResult {
	if state.ExceedsCapacity() {
		return core.ErrorDecision(fmt.Errorf(
			"%w: item %s has %d active borrowings for %d copies",
			lending.ErrCapacityExceeded, state.Item.ID, len(state.ActiveBorrowings), state.Item.Capacity,
		))
	}

	promoted, ok := core.SelectPromotion(state, command.Now)
	if !ok {
		return core.IdempotentDecision()
	}

	return core.SuccessDecision(core.QueuePositionAvailable(promoted))
}
