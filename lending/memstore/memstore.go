// Package memstore is an in-memory lending.Store for tests, demos and the --store=memory CLI mode.
//
// A single mutex serializes every operation, so transactions never interleave. A transaction works on a
// clone of the state and swaps it in on commit.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

var _ lending.Store = (*Store)(nil)

// ErrTransactionNotActive is returned when a Tx is used after its InTx call returned.
var ErrTransactionNotActive = errors.New("transaction is not active")

type state struct {
	items      map[uuid.UUID]lending.Item
	borrowings map[uuid.UUID]lending.Borrowing
	entries    map[uuid.UUID]lending.QueueEntry

	watermark    *lending.Watermark
	leaseOwner   uuid.UUID
	leaseUntil   time.Time
	leaseIsTaken bool
}

func newState() state {
	return state{
		items:      make(map[uuid.UUID]lending.Item),
		borrowings: make(map[uuid.UUID]lending.Borrowing),
		entries:    make(map[uuid.UUID]lending.QueueEntry),
	}
}

func (s state) clone() state {
	cp := newState()

	for id, item := range s.items {
		cp.items[id] = item
	}

	for id, b := range s.borrowings {
		cp.borrowings[id] = cloneBorrowing(b)
	}

	for id, e := range s.entries {
		cp.entries[id] = cloneQueueEntry(e)
	}

	if s.watermark != nil {
		wm := *s.watermark
		cp.watermark = &wm
	}

	cp.leaseOwner = s.leaseOwner
	cp.leaseUntil = s.leaseUntil
	cp.leaseIsTaken = s.leaseIsTaken

	return cp
}

func cloneBorrowing(b lending.Borrowing) lending.Borrowing {
	if b.ReturnedTime != nil {
		b.ReturnedTime = lending.TimePtr(*b.ReturnedTime)
	}

	return b
}

func cloneQueueEntry(e lending.QueueEntry) lending.QueueEntry {
	if e.AvailableTime != nil {
		e.AvailableTime = lending.TimePtr(*e.AvailableTime)
	}

	if e.FulfilledTime != nil {
		e.FulfilledTime = lending.TimePtr(*e.FulfilledTime)
	}

	return e
}

// Store is a mutex-guarded in-memory lending.Store.
type Store struct {
	mu    sync.Mutex
	state state
}

// New creates an empty Store.
func New() *Store {
	return &Store{state: newState()}
}

// InTx runs fn against a clone of the state. The clone replaces the state only if fn returns nil.
func (s *Store) InTx(ctx context.Context, fn lending.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: s.state.clone(), active: true}
	err := fn(ctx, tx)
	tx.active = false

	if err != nil {
		return err
	}

	s.state = tx.state

	return nil
}

// Item returns the item with the given id.
func (s *Store) Item(_ context.Context, itemID uuid.UUID) (lending.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.item(itemID)
}

// Borrowing returns the borrowing with the given id.
func (s *Store) Borrowing(_ context.Context, borrowingID uuid.UUID) (lending.Borrowing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.borrowing(borrowingID)
}

// QueueEntry returns the queue entry with the given id.
func (s *Store) QueueEntry(_ context.Context, entryID uuid.UUID) (lending.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.queueEntry(entryID)
}

// ActiveBorrowings returns the item's unreturned borrowings ordered by due time.
func (s *Store) ActiveBorrowings(_ context.Context, itemID uuid.UUID) (lending.Borrowings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.activeBorrowings(itemID), nil
}

// OpenQueueEntries returns the item's waiting and available entries in FIFO order.
func (s *Store) OpenQueueEntries(_ context.Context, itemID uuid.UUID) (lending.QueueEntries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.openQueueEntries(itemID), nil
}

// InsertItem adds a new item.
func (s *Store) InsertItem(_ context.Context, item lending.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.items[item.ID]; ok {
		return errors.Join(lending.ErrInvalidItem, errors.New("duplicate item id "+item.ID.String()))
	}

	s.state.items[item.ID] = item

	return nil
}

// UpdateItemCapacity changes the number of copies of an item.
func (s *Store) UpdateItemCapacity(_ context.Context, itemID uuid.UUID, capacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.state.item(itemID)
	if err != nil {
		return err
	}

	item.Capacity = capacity
	if err = item.Validate(); err != nil {
		return err
	}

	s.state.items[itemID] = item

	return nil
}

// Items returns all items ordered by name.
func (s *Store) Items(_ context.Context) (lending.Items, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make(lending.Items, 0, len(s.state.items))
	for _, item := range s.state.items {
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}

		return items[i].ID.String() < items[j].ID.String()
	})

	return items, nil
}

// BorrowingsDueWithin returns active borrowings whose due time lies inside the window, ordered by due time.
func (s *Store) BorrowingsDueWithin(_ context.Context, window lending.Window) (lending.Borrowings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.filterBorrowings(func(b lending.Borrowing) bool {
		return b.IsActive() && window.Contains(b.DueTime)
	}), nil
}

// BorrowingsOverdueAt returns active borrowings whose due time lies before at, ordered by due time.
func (s *Store) BorrowingsOverdueAt(_ context.Context, at time.Time) (lending.Borrowings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.filterBorrowings(func(b lending.Borrowing) bool {
		return b.IsOverdueAt(at)
	}), nil
}

// ItemsReturnedWithin returns the distinct ids of items with a borrowing returned inside the window.
func (s *Store) ItemsReturnedWithin(_ context.Context, window lending.Window) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[uuid.UUID]struct{})
	itemIDs := make([]uuid.UUID, 0)

	for _, b := range s.state.sortedBorrowings() {
		if b.ReturnedTime == nil || !window.Contains(*b.ReturnedTime) {
			continue
		}

		if _, ok := seen[b.ItemID]; ok {
			continue
		}

		seen[b.ItemID] = struct{}{}
		itemIDs = append(itemIDs, b.ItemID)
	}

	return itemIDs, nil
}

// QueueEntriesAvailableWithin returns available entries whose available time lies inside the window.
func (s *Store) QueueEntriesAvailableWithin(_ context.Context, window lending.Window) (lending.QueueEntries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.filterQueueEntries(func(e lending.QueueEntry) bool {
		return e.IsAvailable() && window.Contains(*e.AvailableTime)
	}), nil
}

// QueueEntriesAvailableBefore returns available entries whose available time lies before at.
func (s *Store) QueueEntriesAvailableBefore(_ context.Context, at time.Time) (lending.QueueEntries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.filterQueueEntries(func(e lending.QueueEntry) bool {
		return e.IsAvailable() && e.AvailableTime.Before(at)
	}), nil
}

// SeedWatermark creates the watermark unless it exists.
func (s *Store) SeedWatermark(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.watermark == nil {
		s.state.watermark = &lending.Watermark{LastRunTime: lending.ToTimestamp(at)}
	}

	return nil
}

// AcquirePassLease takes the pass lease if it is free, expired or already held by owner.
func (s *Store) AcquirePassLease(
	_ context.Context,
	owner uuid.UUID,
	now time.Time,
	until time.Time,
) (lending.Watermark, bool, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.watermark == nil {
		return lending.Watermark{}, false, errors.Join(lending.ErrStoreUnavailable, errors.New("watermark was not seeded"))
	}

	if s.state.leaseIsTaken && s.state.leaseOwner != owner && s.state.leaseUntil.After(now) {
		return lending.Watermark{}, false, nil
	}

	s.state.leaseOwner = owner
	s.state.leaseUntil = lending.ToTimestamp(until)
	s.state.leaseIsTaken = true

	return *s.state.watermark, true, nil
}

// ReleasePassLease drops the lease if owner holds it.
func (s *Store) ReleasePassLease(_ context.Context, owner uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.leaseIsTaken && s.state.leaseOwner == owner {
		s.state.leaseOwner = uuid.Nil
		s.state.leaseUntil = time.Time{}
		s.state.leaseIsTaken = false
	}

	return nil
}

// AdvanceWatermark moves the last run time forward, never backwards.
func (s *Store) AdvanceWatermark(_ context.Context, to time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	to = lending.ToTimestamp(to)

	if s.state.watermark == nil {
		s.state.watermark = &lending.Watermark{LastRunTime: to}
		return nil
	}

	if to.After(s.state.watermark.LastRunTime) {
		s.state.watermark.LastRunTime = to
	}

	return nil
}

// Watermark returns the current watermark. The second result is false before the first pass.
func (s *Store) Watermark() (lending.Watermark, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.watermark == nil {
		return lending.Watermark{}, false
	}

	return *s.state.watermark, true
}

func (s state) item(itemID uuid.UUID) (lending.Item, error) {
	item, ok := s.items[itemID]
	if !ok {
		return lending.Item{}, lending.ErrItemNotFound
	}

	return item, nil
}

func (s state) borrowing(borrowingID uuid.UUID) (lending.Borrowing, error) {
	b, ok := s.borrowings[borrowingID]
	if !ok {
		return lending.Borrowing{}, lending.ErrBorrowingNotFound
	}

	return cloneBorrowing(b), nil
}

func (s state) queueEntry(entryID uuid.UUID) (lending.QueueEntry, error) {
	e, ok := s.entries[entryID]
	if !ok {
		return lending.QueueEntry{}, lending.ErrQueueEntryNotFound
	}

	return cloneQueueEntry(e), nil
}

func (s state) activeBorrowings(itemID uuid.UUID) lending.Borrowings {
	return s.filterBorrowings(func(b lending.Borrowing) bool {
		return b.ItemID == itemID && b.IsActive()
	})
}

func (s state) openQueueEntries(itemID uuid.UUID) lending.QueueEntries {
	return s.filterQueueEntries(func(e lending.QueueEntry) bool {
		return e.ItemID == itemID && e.IsOpen()
	})
}

func (s state) sortedBorrowings() lending.Borrowings {
	borrowings := make(lending.Borrowings, 0, len(s.borrowings))
	for _, b := range s.borrowings {
		borrowings = append(borrowings, cloneBorrowing(b))
	}

	sort.Slice(borrowings, func(i, j int) bool {
		if !borrowings[i].DueTime.Equal(borrowings[j].DueTime) {
			return borrowings[i].DueTime.Before(borrowings[j].DueTime)
		}

		return borrowings[i].ID.String() < borrowings[j].ID.String()
	})

	return borrowings
}

func (s state) filterBorrowings(keep func(b lending.Borrowing) bool) lending.Borrowings {
	filtered := make(lending.Borrowings, 0)

	for _, b := range s.sortedBorrowings() {
		if keep(b) {
			filtered = append(filtered, b)
		}
	}

	return filtered
}

func (s state) filterQueueEntries(keep func(e lending.QueueEntry) bool) lending.QueueEntries {
	filtered := make(lending.QueueEntries, 0)

	for _, e := range s.entries {
		if keep(e) {
			filtered = append(filtered, cloneQueueEntry(e))
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].EnteredTime.Equal(filtered[j].EnteredTime) {
			return filtered[i].EnteredTime.Before(filtered[j].EnteredTime)
		}

		return filtered[i].ID.String() < filtered[j].ID.String()
	})

	return filtered
}

// transaction is the lending.Tx handed to InTx callbacks. It never takes the store mutex, InTx holds it.
type transaction struct {
	state  state
	active bool
}

func (t *transaction) check() error {
	if !t.active {
		return ErrTransactionNotActive
	}

	return nil
}

func (t *transaction) Item(_ context.Context, itemID uuid.UUID) (lending.Item, error) {
	if err := t.check(); err != nil {
		return lending.Item{}, err
	}

	return t.state.item(itemID)
}

func (t *transaction) LockItem(ctx context.Context, itemID uuid.UUID) (lending.Item, error) {
	return t.Item(ctx, itemID)
}

func (t *transaction) Borrowing(_ context.Context, borrowingID uuid.UUID) (lending.Borrowing, error) {
	if err := t.check(); err != nil {
		return lending.Borrowing{}, err
	}

	return t.state.borrowing(borrowingID)
}

func (t *transaction) QueueEntry(_ context.Context, entryID uuid.UUID) (lending.QueueEntry, error) {
	if err := t.check(); err != nil {
		return lending.QueueEntry{}, err
	}

	return t.state.queueEntry(entryID)
}

func (t *transaction) ActiveBorrowings(_ context.Context, itemID uuid.UUID) (lending.Borrowings, error) {
	if err := t.check(); err != nil {
		return nil, err
	}

	return t.state.activeBorrowings(itemID), nil
}

func (t *transaction) OpenQueueEntries(_ context.Context, itemID uuid.UUID) (lending.QueueEntries, error) {
	if err := t.check(); err != nil {
		return nil, err
	}

	return t.state.openQueueEntries(itemID), nil
}

func (t *transaction) InsertBorrowing(_ context.Context, borrowing lending.Borrowing) error {
	if err := t.check(); err != nil {
		return err
	}

	if _, ok := t.state.borrowings[borrowing.ID]; ok {
		return lending.ErrDuplicateRequest
	}

	if _, err := t.state.item(borrowing.ItemID); err != nil {
		return err
	}

	for _, b := range t.state.activeBorrowings(borrowing.ItemID) {
		if b.BorrowerID == borrowing.BorrowerID {
			return lending.ErrDuplicateRequest
		}
	}

	t.state.borrowings[borrowing.ID] = cloneBorrowing(borrowing)

	return nil
}

func (t *transaction) UpdateBorrowing(_ context.Context, borrowing lending.Borrowing) error {
	if err := t.check(); err != nil {
		return err
	}

	if _, ok := t.state.borrowings[borrowing.ID]; !ok {
		return lending.ErrBorrowingNotFound
	}

	t.state.borrowings[borrowing.ID] = cloneBorrowing(borrowing)

	return nil
}

func (t *transaction) InsertQueueEntry(_ context.Context, entry lending.QueueEntry) error {
	if err := t.check(); err != nil {
		return err
	}

	if _, ok := t.state.entries[entry.ID]; ok {
		return lending.ErrDuplicateRequest
	}

	if _, err := t.state.item(entry.ItemID); err != nil {
		return err
	}

	for _, e := range t.state.openQueueEntries(entry.ItemID) {
		if e.RequesterID == entry.RequesterID {
			return lending.ErrDuplicateRequest
		}
	}

	t.state.entries[entry.ID] = cloneQueueEntry(entry)

	return nil
}

func (t *transaction) UpdateQueueEntry(_ context.Context, entry lending.QueueEntry) error {
	if err := t.check(); err != nil {
		return err
	}

	if _, ok := t.state.entries[entry.ID]; !ok {
		return lending.ErrQueueEntryNotFound
	}

	t.state.entries[entry.ID] = cloneQueueEntry(entry)

	return nil
}
