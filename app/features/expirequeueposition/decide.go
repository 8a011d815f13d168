package expirequeueposition

import (
	"fmt"

	"github.com/AntonStoeckl/lending-daemon-go/app/core"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// Decide expires an available entry and promotes the next waiting entry into the freed reservation.
//
// Business Rules:
//   - An entry that is expired or fulfilled already stays as it is (idempotent)
//   - A waiting entry never held a copy and cannot expire (lending.ErrQueuePositionNotAvailable)
//   - The promotion follows the promote rule and needs an unreserved copy
//
// Returns:
//   - SuccessDecision with QueuePositionExpired, plus QueuePositionAvailable for the promoted entry
func Decide(state core.ItemState, entry lending.QueueEntry, command Command) core.DecisionResult {
	if !entry.IsOpen() {
		return core.IdempotentDecision()
	}

	if entry.IsWaiting() {
		return core.ErrorDecision(fmt.Errorf(
			"%w: entry %s of %s is still waiting", lending.ErrQueuePositionNotAvailable, entry.ID, entry.RequesterID,
		))
	}

	if state.ExceedsCapacity() {
		return core.ErrorDecision(fmt.Errorf(
			"%w: item %s has %d active borrowings for %d copies",
			lending.ErrCapacityExceeded, state.Item.ID, len(state.ActiveBorrowings), state.Item.Capacity,
		))
	}

	entry.Expired = true
	changes := core.Changes{core.QueuePositionExpired(entry)}

	if promoted, ok := core.SelectPromotion(state.WithoutQueueEntry(entry.ID), command.Now); ok {
		changes = append(changes, core.QueuePositionAvailable(promoted))
	}

	return core.SuccessDecision(changes...)
}
