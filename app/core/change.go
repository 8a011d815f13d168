package core

import (
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// ChangeKind names a single state transition.
type ChangeKind string

const (
	BorrowingOpenedKind        ChangeKind = "BorrowingOpened"
	BorrowingReturnedKind      ChangeKind = "BorrowingReturned"
	BorrowingExtendedKind      ChangeKind = "BorrowingExtended"
	QueueEnteredKind           ChangeKind = "QueueEntered"
	QueuePositionAvailableKind ChangeKind = "QueuePositionAvailable"
	QueuePositionExpiredKind   ChangeKind = "QueuePositionExpired"
	QueuePositionFulfilledKind ChangeKind = "QueuePositionFulfilled"
)

// Change carries the new version of exactly one record. Borrowing is set for the Borrowing* kinds,
// QueueEntry for the Queue* kinds.
type Change struct {
	Kind       ChangeKind
	Borrowing  lending.Borrowing
	QueueEntry lending.QueueEntry
}

// Changes is an ordered list of Change values. They are applied in order.
type Changes []Change

// BorrowingOpened inserts a new borrowing.
func BorrowingOpened(b lending.Borrowing) Change {
	return Change{Kind: BorrowingOpenedKind, Borrowing: b}
}

// BorrowingReturned stores a borrowing with its returned time set.
func BorrowingReturned(b lending.Borrowing) Change {
	return Change{Kind: BorrowingReturnedKind, Borrowing: b}
}

// BorrowingExtended stores a borrowing with its new due time.
func BorrowingExtended(b lending.Borrowing) Change {
	return Change{Kind: BorrowingExtendedKind, Borrowing: b}
}

// QueueEntered inserts a new waiting queue entry.
func QueueEntered(e lending.QueueEntry) Change {
	return Change{Kind: QueueEnteredKind, QueueEntry: e}
}

// QueuePositionAvailable stores an entry that was promoted.
func QueuePositionAvailable(e lending.QueueEntry) Change {
	return Change{Kind: QueuePositionAvailableKind, QueueEntry: e}
}

// QueuePositionExpired stores an entry whose grace period lapsed.
func QueuePositionExpired(e lending.QueueEntry) Change {
	return Change{Kind: QueuePositionExpiredKind, QueueEntry: e}
}

// QueuePositionFulfilled stores an entry whose holder borrowed the reserved copy.
func QueuePositionFulfilled(e lending.QueueEntry) Change {
	return Change{Kind: QueuePositionFulfilledKind, QueueEntry: e}
}

// IsInsert reports whether the change creates a record instead of updating one.
func (c Change) IsInsert() bool {
	return c.Kind == BorrowingOpenedKind || c.Kind == QueueEnteredKind
}

// IsBorrowingChange reports whether the change targets a borrowing.
func (c Change) IsBorrowingChange() bool {
	switch c.Kind {
	case BorrowingOpenedKind, BorrowingReturnedKind, BorrowingExtendedKind:
		return true
	default:
		return false
	}
}

// First returns the first change of the given kind.
func (cs Changes) First(kind ChangeKind) (Change, bool) {
	for _, c := range cs {
		if c.Kind == kind {
			return c, true
		}
	}

	return Change{}, false
}
