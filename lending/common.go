package lending

import (
	"errors"
)

var (
	// ErrDuplicateRequest is returned when a requester already has an active borrowing or a waiting queue entry for the item.
	ErrDuplicateRequest = errors.New("requester already has an active borrowing or a waiting queue entry for this item")

	// ErrAlreadyReturned is returned when a borrowing is delivered or extended after it was returned.
	ErrAlreadyReturned = errors.New("borrowing was already returned")

	// ErrQueueNonEmpty is returned when a borrowing cannot be extended because requesters are waiting.
	ErrQueueNonEmpty = errors.New("requesters are waiting for this item")

	// ErrCapacityExceeded signals more active borrowings than copies. It indicates a concurrency bug and must alert.
	ErrCapacityExceeded = errors.New("active borrowings exceed item capacity")

	// ErrNotificationFailure wraps a failed delivery to a single recipient.
	ErrNotificationFailure = errors.New("notification could not be delivered")

	// ErrStoreUnavailable wraps any persistence failure.
	ErrStoreUnavailable = errors.New("lending store unavailable")

	// ErrConcurrencyConflict is returned when a transaction lost against a concurrent writer and may be retried.
	ErrConcurrencyConflict = errors.New("concurrency conflict, transaction was rolled back")

	// ErrQueuePositionNotAvailable is returned when expiring a queue entry that never became available.
	ErrQueuePositionNotAvailable = errors.New("queue position has not become available")

	// ErrPassInProgress is returned when another daemon pass holds the pass lease.
	ErrPassInProgress = errors.New("another daemon pass is in progress")

	ErrItemNotFound          = errors.New("item not found")
	ErrBorrowingNotFound     = errors.New("borrowing not found")
	ErrQueueEntryNotFound    = errors.New("queue entry not found")
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")
	ErrInvalidPolicy         = errors.New("invalid lending policy")
	ErrInvalidItem           = errors.New("invalid item")
)
