package borrow

import (
	"fmt"

	"github.com/AntonStoeckl/lending-daemon-go/app/core"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// Decide implements the business logic to borrow a copy of an item or queue for it.
// This is a pure function with no side effects.
//
// Business Rules:
//   - The active borrowings of the item must not already exceed its capacity
//   - A requester with an active borrowing or a waiting queue entry for the item is rejected
//   - A copy is free while the item has fewer active borrowings than copies, queue reservations do not hold it back
//   - A free copy is lent for the policy's loan term and fulfills the requester's own reservation
//   - Without a free copy the requester joins the end of the queue
//
// Returns:
//   - SuccessDecision with BorrowingOpened, plus QueuePositionFulfilled when a reservation was claimed
//   - SuccessDecision with QueueEntered when no copy is free
//   - ErrorDecision with lending.ErrDuplicateRequest or lending.ErrCapacityExceeded
func Decide(state core.ItemState, command Command, policy lending.Policy) core.DecisionResult {
	if state.ExceedsCapacity() {
		return core.ErrorDecision(fmt.Errorf(
			"%w: item %s has %d active borrowings for %d copies",
			lending.ErrCapacityExceeded, state.Item.ID, len(state.ActiveBorrowings), state.Item.Capacity,
		))
	}

	if _, ok := state.ActiveBorrowingOf(command.RequesterID); ok {
		return core.ErrorDecision(fmt.Errorf(
			"%w: %s already borrows item %s", lending.ErrDuplicateRequest, command.RequesterID, state.Item.ID,
		))
	}

	entry, hasOpenEntry := state.OpenEntryOf(command.RequesterID)
	if hasOpenEntry && entry.IsWaiting() {
		return core.ErrorDecision(fmt.Errorf(
			"%w: %s already waits for item %s", lending.ErrDuplicateRequest, command.RequesterID, state.Item.ID,
		))
	}

	if state.FreeCopies() > 0 {
		borrowing := lending.Borrowing{
			ID:         command.RecordID,
			ItemID:     state.Item.ID,
			BorrowerID: command.RequesterID,
			StartTime:  command.Now,
			DueTime:    policy.DueTime(command.Now),
		}

		changes := core.Changes{core.BorrowingOpened(borrowing)}

		if hasOpenEntry {
			entry.FulfilledTime = lending.TimePtr(command.Now)
			changes = append(changes, core.QueuePositionFulfilled(entry))
		}

		return core.SuccessDecision(changes...)
	}

	if hasOpenEntry {
		// another requester borrowed the copy first
		return core.ErrorDecision(fmt.Errorf(
			"%w: %s already holds a queue position for item %s", lending.ErrDuplicateRequest, command.RequesterID, state.Item.ID,
		))
	}

	return core.SuccessDecision(core.QueueEntered(lending.QueueEntry{
		ID:          command.RecordID,
		ItemID:      state.Item.ID,
		RequesterID: command.RequesterID,
		EnteredTime: command.Now,
	}))
}
