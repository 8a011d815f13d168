package postgresstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
	"github.com/AntonStoeckl/lending-daemon-go/lending/postgresstore/internal/adapters"
)

// reader runs the per-item read queries against one query source: the primary, the replica or a transaction.
type reader struct {
	s     *Store
	query queryFunc
}

func (s *Store) primaryReader() reader {
	return reader{s: s, query: s.db.QueryPrimary}
}

func (s *Store) displayReader() reader {
	return reader{s: s, query: s.db.Query}
}

func (r reader) item(ctx context.Context, itemID uuid.UUID, forUpdate bool) (lending.Item, error) {
	sqlQuery, buildErr := buildSelectItemQuery(itemID, forUpdate)
	if buildErr != nil {
		return lending.Item{}, buildErr
	}

	action := operationItem
	if forUpdate {
		action = operationLockItem
	}

	items, err := r.s.queryItems(ctx, r.query, sqlQuery, action)
	if err != nil {
		return lending.Item{}, err
	}

	if len(items) == 0 {
		return lending.Item{}, lending.ErrItemNotFound
	}

	return items[0], nil
}

func (r reader) borrowing(ctx context.Context, borrowingID uuid.UUID) (lending.Borrowing, error) {
	sqlQuery, buildErr := buildSelectBorrowingQuery(borrowingID)
	if buildErr != nil {
		return lending.Borrowing{}, buildErr
	}

	borrowings, err := r.s.queryBorrowings(ctx, r.query, sqlQuery, operationBorrowing)
	if err != nil {
		return lending.Borrowing{}, err
	}

	if len(borrowings) == 0 {
		return lending.Borrowing{}, lending.ErrBorrowingNotFound
	}

	return borrowings[0], nil
}

func (r reader) queueEntry(ctx context.Context, entryID uuid.UUID) (lending.QueueEntry, error) {
	sqlQuery, buildErr := buildSelectQueueEntryQuery(entryID)
	if buildErr != nil {
		return lending.QueueEntry{}, buildErr
	}

	entries, err := r.s.queryQueueEntries(ctx, r.query, sqlQuery, operationQueueEntry)
	if err != nil {
		return lending.QueueEntry{}, err
	}

	if len(entries) == 0 {
		return lending.QueueEntry{}, lending.ErrQueueEntryNotFound
	}

	return entries[0], nil
}

func (r reader) activeBorrowings(ctx context.Context, itemID uuid.UUID) (lending.Borrowings, error) {
	sqlQuery, buildErr := buildSelectActiveBorrowingsQuery(itemID)
	if buildErr != nil {
		return nil, buildErr
	}

	return r.s.queryBorrowings(ctx, r.query, sqlQuery, operationActiveBorrowings)
}

func (r reader) openQueueEntries(ctx context.Context, itemID uuid.UUID) (lending.QueueEntries, error) {
	sqlQuery, buildErr := buildSelectOpenQueueEntriesQuery(itemID)
	if buildErr != nil {
		return nil, buildErr
	}

	return r.s.queryQueueEntries(ctx, r.query, sqlQuery, operationOpenQueueEntries)
}

// transaction is the lending.Tx handed to InTx callbacks.
type transaction struct {
	store *Store
	dbTx  adapters.DBTx
}

func (t *transaction) reader() reader {
	return reader{s: t.store, query: t.dbTx.Query}
}

func (t *transaction) Item(ctx context.Context, itemID uuid.UUID) (lending.Item, error) {
	return t.reader().item(ctx, itemID, false)
}

// LockItem loads the item with SELECT ... FOR UPDATE.
func (t *transaction) LockItem(ctx context.Context, itemID uuid.UUID) (lending.Item, error) {
	return t.reader().item(ctx, itemID, true)
}

func (t *transaction) Borrowing(ctx context.Context, borrowingID uuid.UUID) (lending.Borrowing, error) {
	return t.reader().borrowing(ctx, borrowingID)
}

func (t *transaction) QueueEntry(ctx context.Context, entryID uuid.UUID) (lending.QueueEntry, error) {
	return t.reader().queueEntry(ctx, entryID)
}

func (t *transaction) ActiveBorrowings(ctx context.Context, itemID uuid.UUID) (lending.Borrowings, error) {
	return t.reader().activeBorrowings(ctx, itemID)
}

func (t *transaction) OpenQueueEntries(ctx context.Context, itemID uuid.UUID) (lending.QueueEntries, error) {
	return t.reader().openQueueEntries(ctx, itemID)
}

func (t *transaction) InsertBorrowing(ctx context.Context, borrowing lending.Borrowing) error {
	sqlQuery, buildErr := buildInsertBorrowingQuery(borrowing)
	if buildErr != nil {
		return buildErr
	}

	_, err := t.store.runExec(ctx, t.dbTx.Exec, sqlQuery, operationInsertBorrowing)

	return err
}

func (t *transaction) UpdateBorrowing(ctx context.Context, borrowing lending.Borrowing) error {
	sqlQuery, buildErr := buildUpdateBorrowingQuery(borrowing)
	if buildErr != nil {
		return buildErr
	}

	rowsAffected, err := t.store.runExec(ctx, t.dbTx.Exec, sqlQuery, operationUpdateBorrowing)
	if err == nil && rowsAffected == 0 {
		return lending.ErrBorrowingNotFound
	}

	return err
}

func (t *transaction) InsertQueueEntry(ctx context.Context, entry lending.QueueEntry) error {
	sqlQuery, buildErr := buildInsertQueueEntryQuery(entry)
	if buildErr != nil {
		return buildErr
	}

	_, err := t.store.runExec(ctx, t.dbTx.Exec, sqlQuery, operationInsertQueueEntry)

	return err
}

func (t *transaction) UpdateQueueEntry(ctx context.Context, entry lending.QueueEntry) error {
	sqlQuery, buildErr := buildUpdateQueueEntryQuery(entry)
	if buildErr != nil {
		return buildErr
	}

	rowsAffected, err := t.store.runExec(ctx, t.dbTx.Exec, sqlQuery, operationUpdateQueueEntry)
	if err == nil && rowsAffected == 0 {
		return lending.ErrQueueEntryNotFound
	}

	return err
}
