package core

import (
	"github.com/google/uuid"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// ItemState is everything a rule may look at for one item. It is loaded while the item's row is locked.
type ItemState struct {
	Item             lending.Item
	ActiveBorrowings lending.Borrowings
	OpenQueue        lending.QueueEntries // FIFO: entered time, then id
}

// ActiveBorrowingOf returns the requester's active borrowing of this item.
func (s ItemState) ActiveBorrowingOf(requesterID string) (lending.Borrowing, bool) {
	for _, b := range s.ActiveBorrowings {
		if b.BorrowerID == requesterID {
			return b, true
		}
	}

	return lending.Borrowing{}, false
}

// OpenEntryOf returns the requester's waiting or available entry for this item.
func (s ItemState) OpenEntryOf(requesterID string) (lending.QueueEntry, bool) {
	for _, e := range s.OpenQueue {
		if e.RequesterID == requesterID {
			return e, true
		}
	}

	return lending.QueueEntry{}, false
}

// FirstWaiting returns the earliest waiting entry.
func (s ItemState) FirstWaiting() (lending.QueueEntry, bool) {
	for _, e := range s.OpenQueue {
		if e.IsWaiting() {
			return e, true
		}
	}

	return lending.QueueEntry{}, false
}

// HasWaiting reports whether any requester is still waiting for a copy.
func (s ItemState) HasWaiting() bool {
	_, ok := s.FirstWaiting()
	return ok
}

// ReservedCopies counts the available entries. Each one holds back a copy from promotion.
func (s ItemState) ReservedCopies() int {
	reserved := 0

	for _, e := range s.OpenQueue {
		if e.IsAvailable() {
			reserved++
		}
	}

	return reserved
}

// UnreservedCopies is the number of copies neither lent out nor held for a promoted requester.
func (s ItemState) UnreservedCopies() int {
	return s.Item.Capacity - len(s.ActiveBorrowings) - s.ReservedCopies()
}

// FreeCopies is the number of copies not lent out. Reservations of available entries do not reduce it.
func (s ItemState) FreeCopies() int {
	return s.Item.Capacity - len(s.ActiveBorrowings)
}

// ExceedsCapacity reports a broken capacity invariant.
func (s ItemState) ExceedsCapacity() bool {
	return len(s.ActiveBorrowings) > s.Item.Capacity
}

// WithoutQueueEntry returns a copy of the state in which the entry is no longer open.
func (s ItemState) WithoutQueueEntry(entryID uuid.UUID) ItemState {
	openQueue := make(lending.QueueEntries, 0, len(s.OpenQueue))

	for _, e := range s.OpenQueue {
		if e.ID != entryID {
			openQueue = append(openQueue, e)
		}
	}

	s.OpenQueue = openQueue

	return s
}

// WithQueueEntry returns a copy of the state in which entry replaces the open entry with the same id.
func (s ItemState) WithQueueEntry(entry lending.QueueEntry) ItemState {
	openQueue := make(lending.QueueEntries, 0, len(s.OpenQueue))

	for _, e := range s.OpenQueue {
		if e.ID == entry.ID {
			e = entry
		}

		openQueue = append(openQueue, e)
	}

	s.OpenQueue = openQueue

	return s
}
