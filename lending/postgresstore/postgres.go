package postgresstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
	"github.com/AntonStoeckl/lending-daemon-go/lending/postgresstore/internal/adapters"
)

//go:embed schema.sql
var schemaSQL string

var _ lending.Store = (*Store)(nil)

// Store is the PostgreSQL lending.Store.
// Display reads (Items, ActiveBorrowings, OpenQueueEntries) may go to a replica. Everything the rules
// and the daemon decide on reads from the primary.
type Store struct {
	db               adapters.DBAdapter
	logger           lending.Logger
	contextualLogger lending.ContextualLogger
	metricsCollector lending.MetricsCollector
	tracingCollector lending.TracingCollector
}

// NewStoreFromPGXPool creates a new Store using a pgx Pool with optional configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil {
		return nil, lending.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), options...)
}

// NewStoreFromPGXPoolAndReplica creates a new Store that sends display reads to the replica pool.
func NewStoreFromPGXPoolAndReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil || replica == nil {
		return nil, lending.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapterWithReplica(db, replica), options...)
}

// NewStoreFromSQLDB creates a new Store using a sql.DB with optional configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, lending.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options...)
}

// NewStoreFromSQLX creates a new Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, lending.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options...)
}

func newStore(db adapters.DBAdapter, options ...Option) (*Store, error) {
	s := &Store{db: db}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	observer, ctx := s.startOperation(ctx, operationMigrate)

	_, err := s.runExec(ctx, s.db.Exec, schemaSQL, operationMigrate)

	return observer.finish(err, 0)
}

// InTx runs fn inside a read-committed transaction. The transaction commits if fn returns nil.
func (s *Store) InTx(ctx context.Context, fn lending.TxFunc) error {
	observer, ctx := s.startOperation(ctx, operationTransaction)

	dbTx, beginErr := s.db.BeginTx(ctx)
	if beginErr != nil {
		s.logError(ctx, logMsgBeginTxFailed, beginErr)
		return observer.finish(mapDBError(beginErr), 0)
	}

	if fnErr := fn(ctx, &transaction{store: s, dbTx: dbTx}); fnErr != nil {
		if rollbackErr := dbTx.Rollback(ctx); rollbackErr != nil {
			s.logWarn(ctx, logMsgRollbackFailed, rollbackErr)
		}

		return observer.finish(fnErr, 0)
	}

	if commitErr := dbTx.Commit(ctx); commitErr != nil {
		s.logError(ctx, logMsgCommitFailed, commitErr)
		return observer.finish(mapDBError(commitErr), 0)
	}

	return observer.finish(nil, 0)
}

// Item returns the item with the given id.
func (s *Store) Item(ctx context.Context, itemID uuid.UUID) (lending.Item, error) {
	observer, ctx := s.startOperation(ctx, operationItem)

	item, err := s.primaryReader().item(ctx, itemID, false)

	return item, observer.finish(err, 1)
}

// Borrowing returns the borrowing with the given id.
func (s *Store) Borrowing(ctx context.Context, borrowingID uuid.UUID) (lending.Borrowing, error) {
	observer, ctx := s.startOperation(ctx, operationBorrowing)

	borrowing, err := s.primaryReader().borrowing(ctx, borrowingID)

	return borrowing, observer.finish(err, 1)
}

// QueueEntry returns the queue entry with the given id.
func (s *Store) QueueEntry(ctx context.Context, entryID uuid.UUID) (lending.QueueEntry, error) {
	observer, ctx := s.startOperation(ctx, operationQueueEntry)

	entry, err := s.primaryReader().queueEntry(ctx, entryID)

	return entry, observer.finish(err, 1)
}

// ActiveBorrowings returns the item's unreturned borrowings ordered by due time.
func (s *Store) ActiveBorrowings(ctx context.Context, itemID uuid.UUID) (lending.Borrowings, error) {
	observer, ctx := s.startOperation(ctx, operationActiveBorrowings)

	borrowings, err := s.displayReader().activeBorrowings(ctx, itemID)

	return borrowings, observer.finish(err, len(borrowings))
}

// OpenQueueEntries returns the item's waiting and available entries in FIFO order.
func (s *Store) OpenQueueEntries(ctx context.Context, itemID uuid.UUID) (lending.QueueEntries, error) {
	observer, ctx := s.startOperation(ctx, operationOpenQueueEntries)

	entries, err := s.displayReader().openQueueEntries(ctx, itemID)

	return entries, observer.finish(err, len(entries))
}

// InsertItem adds a new item.
func (s *Store) InsertItem(ctx context.Context, item lending.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}

	observer, ctx := s.startOperation(ctx, operationInsertItem)

	sqlQuery, buildErr := buildInsertItemQuery(item)
	if buildErr != nil {
		return observer.finish(buildErr, 0)
	}

	_, err := s.runExec(ctx, s.db.Exec, sqlQuery, operationInsertItem)

	return observer.finish(err, 1)
}

// UpdateItemCapacity changes the number of copies of an item.
func (s *Store) UpdateItemCapacity(ctx context.Context, itemID uuid.UUID, capacity int) error {
	if err := (lending.Item{ID: itemID, Name: "-", Capacity: capacity}).Validate(); err != nil {
		return err
	}

	observer, ctx := s.startOperation(ctx, operationUpdateItemCapacity)

	sqlQuery, buildErr := buildUpdateItemCapacityQuery(itemID, capacity)
	if buildErr != nil {
		return observer.finish(buildErr, 0)
	}

	rowsAffected, err := s.runExec(ctx, s.db.Exec, sqlQuery, operationUpdateItemCapacity)
	if err == nil && rowsAffected == 0 {
		err = lending.ErrItemNotFound
	}

	return observer.finish(err, int(rowsAffected))
}

// Items returns all items ordered by name.
func (s *Store) Items(ctx context.Context) (lending.Items, error) {
	observer, ctx := s.startOperation(ctx, operationItems)

	sqlQuery, buildErr := buildSelectItemsQuery()
	if buildErr != nil {
		return nil, observer.finish(buildErr, 0)
	}

	items, err := s.queryItems(ctx, s.db.Query, sqlQuery, operationItems)

	return items, observer.finish(err, len(items))
}

// BorrowingsDueWithin returns active borrowings whose due time lies inside the window.
func (s *Store) BorrowingsDueWithin(ctx context.Context, window lending.Window) (lending.Borrowings, error) {
	observer, ctx := s.startOperation(ctx, operationBorrowingsDueWithin)

	sqlQuery, buildErr := buildSelectBorrowingsDueWithinQuery(window)
	if buildErr != nil {
		return nil, observer.finish(buildErr, 0)
	}

	borrowings, err := s.queryBorrowings(ctx, s.db.QueryPrimary, sqlQuery, operationBorrowingsDueWithin)

	return borrowings, observer.finish(err, len(borrowings))
}

// BorrowingsOverdueAt returns active borrowings whose due time lies before at.
func (s *Store) BorrowingsOverdueAt(ctx context.Context, at time.Time) (lending.Borrowings, error) {
	observer, ctx := s.startOperation(ctx, operationBorrowingsOverdueAt)

	sqlQuery, buildErr := buildSelectBorrowingsOverdueQuery(at)
	if buildErr != nil {
		return nil, observer.finish(buildErr, 0)
	}

	borrowings, err := s.queryBorrowings(ctx, s.db.QueryPrimary, sqlQuery, operationBorrowingsOverdueAt)

	return borrowings, observer.finish(err, len(borrowings))
}

// ItemsReturnedWithin returns the distinct ids of items with a borrowing returned inside the window.
func (s *Store) ItemsReturnedWithin(ctx context.Context, window lending.Window) ([]uuid.UUID, error) {
	observer, ctx := s.startOperation(ctx, operationItemsReturnedWithin)

	sqlQuery, buildErr := buildSelectItemsReturnedWithinQuery(window)
	if buildErr != nil {
		return nil, observer.finish(buildErr, 0)
	}

	rows, queryErr := s.runQuery(ctx, s.db.QueryPrimary, sqlQuery, operationItemsReturnedWithin)
	if queryErr != nil {
		return nil, observer.finish(queryErr, 0)
	}

	itemIDs, err := collectRows(ctx, s, rows, func(rows adapters.DBRows) (uuid.UUID, error) {
		var itemID uuid.UUID
		scanErr := rows.Scan(&itemID)

		return itemID, scanErr
	})

	return itemIDs, observer.finish(err, len(itemIDs))
}

// QueueEntriesAvailableWithin returns available entries whose available time lies inside the window.
func (s *Store) QueueEntriesAvailableWithin(ctx context.Context, window lending.Window) (lending.QueueEntries, error) {
	observer, ctx := s.startOperation(ctx, operationQueueEntriesAvailableWithin)

	sqlQuery, buildErr := buildSelectQueueEntriesAvailableWithinQuery(window)
	if buildErr != nil {
		return nil, observer.finish(buildErr, 0)
	}

	entries, err := s.queryQueueEntries(ctx, s.db.QueryPrimary, sqlQuery, operationQueueEntriesAvailableWithin)

	return entries, observer.finish(err, len(entries))
}

// QueueEntriesAvailableBefore returns available entries whose available time lies before at.
func (s *Store) QueueEntriesAvailableBefore(ctx context.Context, at time.Time) (lending.QueueEntries, error) {
	observer, ctx := s.startOperation(ctx, operationQueueEntriesAvailableBefore)

	sqlQuery, buildErr := buildSelectQueueEntriesAvailableBeforeQuery(at)
	if buildErr != nil {
		return nil, observer.finish(buildErr, 0)
	}

	entries, err := s.queryQueueEntries(ctx, s.db.QueryPrimary, sqlQuery, operationQueueEntriesAvailableBefore)

	return entries, observer.finish(err, len(entries))
}

// SeedWatermark creates the watermark row unless it exists.
func (s *Store) SeedWatermark(ctx context.Context, at time.Time) error {
	observer, ctx := s.startOperation(ctx, operationSeedWatermark)

	sqlQuery, buildErr := buildSeedWatermarkQuery(at)
	if buildErr != nil {
		return observer.finish(buildErr, 0)
	}

	rowsAffected, err := s.runExec(ctx, s.db.Exec, sqlQuery, operationSeedWatermark)

	return observer.finish(err, int(rowsAffected))
}

// AcquirePassLease takes the pass lease if it is free, expired or already held by owner.
func (s *Store) AcquirePassLease(
	ctx context.Context,
	owner uuid.UUID,
	now time.Time,
	until time.Time,
) (lending.Watermark, bool, error) {

	observer, ctx := s.startOperation(ctx, operationAcquirePassLease)

	sqlQuery, buildErr := buildAcquirePassLeaseQuery(owner, now, until)
	if buildErr != nil {
		return lending.Watermark{}, false, observer.finish(buildErr, 0)
	}

	watermarks, err := s.queryWatermarks(ctx, sqlQuery, operationAcquirePassLease)
	if err != nil {
		return lending.Watermark{}, false, observer.finish(err, 0)
	}

	if len(watermarks) == 1 {
		return watermarks[0], true, observer.finish(nil, 1)
	}

	// Nothing updated: either another live lease exists or the watermark was never seeded.
	selectQuery, buildErr := buildSelectWatermarkQuery()
	if buildErr != nil {
		return lending.Watermark{}, false, observer.finish(buildErr, 0)
	}

	existing, err := s.queryWatermarks(ctx, selectQuery, operationAcquirePassLease)
	if err != nil {
		return lending.Watermark{}, false, observer.finish(err, 0)
	}

	if len(existing) == 0 {
		err = errors.Join(lending.ErrStoreUnavailable, errWatermarkNotSeeded)
		return lending.Watermark{}, false, observer.finish(err, 0)
	}

	return lending.Watermark{}, false, observer.finish(nil, 0)
}

// ReleasePassLease drops the lease if owner holds it.
func (s *Store) ReleasePassLease(ctx context.Context, owner uuid.UUID) error {
	observer, ctx := s.startOperation(ctx, operationReleasePassLease)

	sqlQuery, buildErr := buildReleasePassLeaseQuery(owner)
	if buildErr != nil {
		return observer.finish(buildErr, 0)
	}

	rowsAffected, err := s.runExec(ctx, s.db.Exec, sqlQuery, operationReleasePassLease)

	return observer.finish(err, int(rowsAffected))
}

// AdvanceWatermark moves the last run time forward with GREATEST, so it never moves backwards.
func (s *Store) AdvanceWatermark(ctx context.Context, to time.Time) error {
	observer, ctx := s.startOperation(ctx, operationAdvanceWatermark)

	sqlQuery, buildErr := buildAdvanceWatermarkQuery(to)
	if buildErr != nil {
		return observer.finish(buildErr, 0)
	}

	rowsAffected, err := s.runExec(ctx, s.db.Exec, sqlQuery, operationAdvanceWatermark)
	if err == nil && rowsAffected == 0 {
		err = errors.Join(lending.ErrStoreUnavailable, errWatermarkNotSeeded)
	}

	return observer.finish(err, int(rowsAffected))
}

var errWatermarkNotSeeded = errors.New("watermark was not seeded")

type (
	queryFunc func(ctx context.Context, query string) (adapters.DBRows, error)
	execFunc  func(ctx context.Context, query string) (adapters.DBResult, error)
)

// runQuery executes a query, logs it with its duration and maps driver errors.
func (s *Store) runQuery(ctx context.Context, run queryFunc, sqlQuery string, action string) (adapters.DBRows, error) {
	start := time.Now()
	rows, queryErr := run(ctx, sqlQuery)
	s.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if queryErr != nil {
		s.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, mapDBError(queryErr)
	}

	return rows, nil
}

// runExec executes a statement, logs it with its duration and maps driver errors.
func (s *Store) runExec(ctx context.Context, run execFunc, sqlQuery string, action string) (int64, error) {
	start := time.Now()
	result, execErr := run(ctx, sqlQuery)
	s.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if execErr != nil {
		s.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return 0, mapDBError(execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		s.logError(ctx, logMsgRowsAffectedFailed, rowsAffectedErr)
		return 0, errors.Join(lending.ErrStoreUnavailable, rowsAffectedErr)
	}

	return rowsAffected, nil
}

func (s *Store) queryItems(ctx context.Context, run queryFunc, sqlQuery string, action string) (lending.Items, error) {
	rows, err := s.runQuery(ctx, run, sqlQuery, action)
	if err != nil {
		return nil, err
	}

	return collectRows(ctx, s, rows, scanItem)
}

func (s *Store) queryBorrowings(
	ctx context.Context,
	run queryFunc,
	sqlQuery string,
	action string,
) (lending.Borrowings, error) {

	rows, err := s.runQuery(ctx, run, sqlQuery, action)
	if err != nil {
		return nil, err
	}

	return collectRows(ctx, s, rows, scanBorrowing)
}

func (s *Store) queryQueueEntries(
	ctx context.Context,
	run queryFunc,
	sqlQuery string,
	action string,
) (lending.QueueEntries, error) {

	rows, err := s.runQuery(ctx, run, sqlQuery, action)
	if err != nil {
		return nil, err
	}

	return collectRows(ctx, s, rows, scanQueueEntry)
}

func (s *Store) queryWatermarks(ctx context.Context, sqlQuery string, action string) ([]lending.Watermark, error) {
	rows, err := s.runQuery(ctx, s.db.QueryPrimary, sqlQuery, action)
	if err != nil {
		return nil, err
	}

	return collectRows(ctx, s, rows, func(rows adapters.DBRows) (lending.Watermark, error) {
		var wm lending.Watermark
		scanErr := rows.Scan(&wm.LastRunTime)
		wm.LastRunTime = lending.ToTimestamp(wm.LastRunTime)

		return wm, scanErr
	})
}

// collectRows scans all rows and closes them.
func collectRows[T any](
	ctx context.Context,
	s *Store,
	rows adapters.DBRows,
	scan func(rows adapters.DBRows) (T, error),
) ([]T, error) {

	defer s.closeRows(ctx, rows)

	result := make([]T, 0)

	for rows.Next() {
		value, scanErr := scan(rows)
		if scanErr != nil {
			s.logError(ctx, logMsgScanRowFailed, scanErr)
			return nil, errors.Join(lending.ErrStoreUnavailable, scanErr)
		}

		result = append(result, value)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		s.logError(ctx, logMsgDBQueryFailed, rowsErr)
		return nil, mapDBError(rowsErr)
	}

	return result, nil
}

// closeRows safely closes database rows and logs any errors.
func (s *Store) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.logWarn(ctx, logMsgCloseRowsFailed, closeErr)
	}
}

func scanItem(rows adapters.DBRows) (lending.Item, error) {
	var item lending.Item
	err := rows.Scan(&item.ID, &item.Name, &item.CatalogID, &item.Capacity)

	return item, err
}

func scanBorrowing(rows adapters.DBRows) (lending.Borrowing, error) {
	var b lending.Borrowing
	if err := rows.Scan(&b.ID, &b.ItemID, &b.BorrowerID, &b.StartTime, &b.DueTime, &b.ReturnedTime); err != nil {
		return lending.Borrowing{}, err
	}

	b.StartTime = lending.ToTimestamp(b.StartTime)
	b.DueTime = lending.ToTimestamp(b.DueTime)
	b.ReturnedTime = normalizeTime(b.ReturnedTime)

	return b, nil
}

func scanQueueEntry(rows adapters.DBRows) (lending.QueueEntry, error) {
	var e lending.QueueEntry
	if err := rows.Scan(
		&e.ID, &e.ItemID, &e.RequesterID, &e.EnteredTime, &e.AvailableTime, &e.Expired, &e.FulfilledTime,
	); err != nil {
		return lending.QueueEntry{}, err
	}

	e.EnteredTime = lending.ToTimestamp(e.EnteredTime)
	e.AvailableTime = normalizeTime(e.AvailableTime)
	e.FulfilledTime = normalizeTime(e.FulfilledTime)

	return e, nil
}

func normalizeTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	return lending.TimePtr(*t)
}
