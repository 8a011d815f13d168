package lending

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ItemReader reads the records that belong to one item.
type ItemReader interface {
	Item(ctx context.Context, itemID uuid.UUID) (Item, error)
	Borrowing(ctx context.Context, borrowingID uuid.UUID) (Borrowing, error)
	QueueEntry(ctx context.Context, entryID uuid.UUID) (QueueEntry, error)

	// ActiveBorrowings returns the item's unreturned borrowings ordered by due time.
	ActiveBorrowings(ctx context.Context, itemID uuid.UUID) (Borrowings, error)

	// OpenQueueEntries returns the item's waiting and available entries in FIFO order (entered time, then id).
	OpenQueueEntries(ctx context.Context, itemID uuid.UUID) (QueueEntries, error)
}

// Tx is a single atomic unit of work against the store.
type Tx interface {
	ItemReader

	// LockItem loads the item and serializes all other writers for this item until the transaction ends.
	LockItem(ctx context.Context, itemID uuid.UUID) (Item, error)

	InsertBorrowing(ctx context.Context, borrowing Borrowing) error
	UpdateBorrowing(ctx context.Context, borrowing Borrowing) error
	InsertQueueEntry(ctx context.Context, entry QueueEntry) error
	UpdateQueueEntry(ctx context.Context, entry QueueEntry) error
}

// TxFunc is executed inside a transaction. Returning an error rolls the transaction back.
type TxFunc func(ctx context.Context, tx Tx) error

// Transactor runs functions inside a transaction.
type Transactor interface {
	InTx(ctx context.Context, fn TxFunc) error
}

// Catalog manages items.
type Catalog interface {
	InsertItem(ctx context.Context, item Item) error
	UpdateItemCapacity(ctx context.Context, itemID uuid.UUID, capacity int) error
	Items(ctx context.Context) (Items, error)
}

// TimeQueries are the window and cut-off queries a daemon pass runs.
type TimeQueries interface {
	// BorrowingsDueWithin returns active borrowings whose due time lies inside the window.
	BorrowingsDueWithin(ctx context.Context, window Window) (Borrowings, error)

	// BorrowingsOverdueAt returns active borrowings whose due time lies before at.
	BorrowingsOverdueAt(ctx context.Context, at time.Time) (Borrowings, error)

	// ItemsReturnedWithin returns the distinct ids of items with at least one borrowing returned inside the window.
	ItemsReturnedWithin(ctx context.Context, window Window) ([]uuid.UUID, error)

	// QueueEntriesAvailableWithin returns available entries whose available time lies inside the window.
	QueueEntriesAvailableWithin(ctx context.Context, window Window) (QueueEntries, error)

	// QueueEntriesAvailableBefore returns available entries whose available time lies before at.
	QueueEntriesAvailableBefore(ctx context.Context, at time.Time) (QueueEntries, error)
}

// WatermarkStore persists the daemon watermark and its pass lease.
type WatermarkStore interface {
	// SeedWatermark creates the watermark with at as its last run time unless it exists already.
	SeedWatermark(ctx context.Context, at time.Time) error

	// AcquirePassLease takes the pass lease for owner until the given instant if no other live lease exists.
	// It returns the watermark as seen under the lease.
	AcquirePassLease(ctx context.Context, owner uuid.UUID, now time.Time, until time.Time) (Watermark, bool, error)

	// ReleasePassLease drops the lease if owner holds it.
	ReleasePassLease(ctx context.Context, owner uuid.UUID) error

	// AdvanceWatermark moves the last run time forward. It never moves it backwards.
	AdvanceWatermark(ctx context.Context, to time.Time) error
}

// Store is the complete lending store boundary.
type Store interface {
	ItemReader
	Transactor
	Catalog
	TimeQueries
	WatermarkStore
}
