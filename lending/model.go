package lending

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QueueEntryState is the lifecycle state of a QueueEntry.
type QueueEntryState string

const (
	QueueEntryWaiting   QueueEntryState = "waiting"
	QueueEntryAvailable QueueEntryState = "available"
	QueueEntryFulfilled QueueEntryState = "fulfilled"
	QueueEntryExpired   QueueEntryState = "expired"
)

// Item is a catalog entry with Capacity physical copies.
type Item struct {
	ID        uuid.UUID
	Name      string
	CatalogID string
	Capacity  int
}

// Items is a list of Item records.
type Items []Item

// BuildItem creates a new Item with a fresh identity.
func BuildItem(name string, catalogID string, capacity int) (Item, error) {
	item := Item{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(name),
		CatalogID: strings.TrimSpace(catalogID),
		Capacity:  capacity,
	}

	if err := item.Validate(); err != nil {
		return Item{}, err
	}

	return item, nil
}

// Validate checks the item fields the store relies on.
func (i Item) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidItem)
	}

	if i.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1, got %d", ErrInvalidItem, i.Capacity)
	}

	return nil
}

// Borrowing is a loan of one copy of an Item. A nil ReturnedTime means the borrowing is active.
type Borrowing struct {
	ID           uuid.UUID
	ItemID       uuid.UUID
	BorrowerID   string
	StartTime    time.Time
	DueTime      time.Time
	ReturnedTime *time.Time
}

// Borrowings is a list of Borrowing records.
type Borrowings []Borrowing

// IsActive reports whether the borrowing has not been returned yet.
func (b Borrowing) IsActive() bool {
	return b.ReturnedTime == nil
}

// IsOverdueAt reports whether the borrowing is active and its due time lies before at.
func (b Borrowing) IsOverdueAt(at time.Time) bool {
	return b.IsActive() && b.DueTime.Before(at)
}

// QueueEntry is a reservation request for an Item.
type QueueEntry struct {
	ID            uuid.UUID
	ItemID        uuid.UUID
	RequesterID   string
	EnteredTime   time.Time
	AvailableTime *time.Time
	Expired       bool
	FulfilledTime *time.Time
}

// QueueEntries is a list of QueueEntry records.
type QueueEntries []QueueEntry

// State derives the lifecycle state from the entry's fields.
func (q QueueEntry) State() QueueEntryState {
	switch {
	case q.Expired:
		return QueueEntryExpired
	case q.FulfilledTime != nil:
		return QueueEntryFulfilled
	case q.AvailableTime != nil:
		return QueueEntryAvailable
	default:
		return QueueEntryWaiting
	}
}

// IsWaiting reports whether no copy has been reserved for the entry yet.
func (q QueueEntry) IsWaiting() bool {
	return q.State() == QueueEntryWaiting
}

// IsAvailable reports whether a copy is reserved for the entry and it has been neither claimed nor expired.
func (q QueueEntry) IsAvailable() bool {
	return q.State() == QueueEntryAvailable
}

// IsOpen reports whether the entry is still waiting or available.
func (q QueueEntry) IsOpen() bool {
	return q.IsWaiting() || q.IsAvailable()
}

// Watermark holds the end of the last completed daemon pass.
type Watermark struct {
	LastRunTime time.Time
}

// ToTimestamp normalizes t to UTC with microsecond precision, the precision Postgres stores.
func ToTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// TimePtr returns a pointer to the normalized t.
func TimePtr(t time.Time) *time.Time {
	ts := ToTimestamp(t)
	return &ts
}
