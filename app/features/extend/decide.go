package extend

import (
	"fmt"

	"github.com/AntonStoeckl/lending-daemon-go/app/core"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// Decide moves the due time of an active borrowing to command.Now plus the queue expiry period.
//
// Business Rules:
//   - A returned borrowing cannot be extended (lending.ErrAlreadyReturned)
//   - Nobody may be waiting for the item (lending.ErrQueueNonEmpty), requesters holding a reserved copy do not block
func Decide(state core.ItemState, borrowing lending.Borrowing, command Command, policy lending.Policy) core.DecisionResult {
	if !borrowing.IsActive() {
		return core.ErrorDecision(fmt.Errorf("%w: borrowing %s", lending.ErrAlreadyReturned, borrowing.ID))
	}

	if waiting, ok := state.FirstWaiting(); ok {
		return core.ErrorDecision(fmt.Errorf(
			"%w: %s waits for item %s since %s",
			lending.ErrQueueNonEmpty, waiting.RequesterID, state.Item.ID, waiting.EnteredTime.Format("2006-01-02 15:04:05"),
		))
	}

	borrowing.DueTime = policy.ExtendedDueTime(command.Now)

	return core.SuccessDecision(core.BorrowingExtended(borrowing))
}
