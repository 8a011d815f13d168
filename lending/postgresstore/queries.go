package postgresstore

import (
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

const (
	dialectPostgres = "postgres"

	tableItems        = "items"
	tableBorrowings   = "borrowings"
	tableQueueEntries = "queue_entries"
	tableWatermark    = "watermark"

	colID            = "id"
	colName          = "name"
	colCatalogID     = "catalog_id"
	colCapacity      = "capacity"
	colItemID        = "item_id"
	colBorrowerID    = "borrower_id"
	colStartTime     = "start_time"
	colDueTime       = "due_time"
	colReturnedTime  = "returned_time"
	colRequesterID   = "requester_id"
	colEnteredTime   = "entered_time"
	colAvailableTime = "available_time"
	colExpired       = "expired"
	colFulfilledTime = "fulfilled_time"
	colLastRunTime   = "last_run_time"
	colLeaseOwner    = "lease_owner"
	colLeaseUntil    = "lease_until"

	watermarkRowID = 1
)

type sqlQueryString = string

var (
	itemCols       = []any{colID, colName, colCatalogID, colCapacity}
	borrowingCols  = []any{colID, colItemID, colBorrowerID, colStartTime, colDueTime, colReturnedTime}
	queueEntryCols = []any{
		colID, colItemID, colRequesterID, colEnteredTime, colAvailableTime, colExpired, colFulfilledTime,
	}
)

func dialect() goqu.DialectWrapper {
	return goqu.Dialect(dialectPostgres)
}

func toSQL(stmt interface {
	ToSQL() (string, []any, error)
}) (sqlQueryString, error) {

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// nullableTime keeps goqu from interpolating a typed nil pointer.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}

	return lending.ToTimestamp(*t)
}

func activeBorrowing() exp.Expression {
	return goqu.C(colReturnedTime).IsNull()
}

func openQueueEntry() exp.Expression {
	return goqu.And(
		goqu.C(colExpired).IsFalse(),
		goqu.C(colFulfilledTime).IsNull(),
	)
}

func availableQueueEntry() exp.Expression {
	return goqu.And(
		openQueueEntry(),
		goqu.C(colAvailableTime).IsNotNull(),
	)
}

func insideWindow(col string, window lending.Window) exp.Expression {
	return goqu.And(
		goqu.C(col).Gt(window.After),
		goqu.C(col).Lte(window.Until),
	)
}

func buildSelectItemQuery(itemID uuid.UUID, forUpdate bool) (sqlQueryString, error) {
	stmt := dialect().
		From(tableItems).
		Select(itemCols...).
		Where(goqu.C(colID).Eq(itemID.String()))

	if forUpdate {
		stmt = stmt.ForUpdate(exp.Wait)
	}

	return toSQL(stmt)
}

func buildSelectItemsQuery() (sqlQueryString, error) {
	return toSQL(dialect().
		From(tableItems).
		Select(itemCols...).
		Order(goqu.I(colName).Asc(), goqu.I(colID).Asc()))
}

func buildInsertItemQuery(item lending.Item) (sqlQueryString, error) {
	return toSQL(dialect().
		Insert(tableItems).
		Rows(goqu.Record{
			colID:        item.ID.String(),
			colName:      item.Name,
			colCatalogID: item.CatalogID,
			colCapacity:  item.Capacity,
		}))
}

func buildUpdateItemCapacityQuery(itemID uuid.UUID, capacity int) (sqlQueryString, error) {
	return toSQL(dialect().
		Update(tableItems).
		Set(goqu.Record{colCapacity: capacity}).
		Where(goqu.C(colID).Eq(itemID.String())))
}

func buildSelectBorrowingQuery(borrowingID uuid.UUID) (sqlQueryString, error) {
	return toSQL(dialect().
		From(tableBorrowings).
		Select(borrowingCols...).
		Where(goqu.C(colID).Eq(borrowingID.String())))
}

func buildSelectActiveBorrowingsQuery(itemID uuid.UUID) (sqlQueryString, error) {
	return toSQL(dialect().
		From(tableBorrowings).
		Select(borrowingCols...).
		Where(goqu.C(colItemID).Eq(itemID.String()), activeBorrowing()).
		Order(goqu.I(colDueTime).Asc(), goqu.I(colID).Asc()))
}

func buildInsertBorrowingQuery(b lending.Borrowing) (sqlQueryString, error) {
	return toSQL(dialect().
		Insert(tableBorrowings).
		Rows(goqu.Record{
			colID:           b.ID.String(),
			colItemID:       b.ItemID.String(),
			colBorrowerID:   b.BorrowerID,
			colStartTime:    lending.ToTimestamp(b.StartTime),
			colDueTime:      lending.ToTimestamp(b.DueTime),
			colReturnedTime: nullableTime(b.ReturnedTime),
		}))
}

func buildUpdateBorrowingQuery(b lending.Borrowing) (sqlQueryString, error) {
	return toSQL(dialect().
		Update(tableBorrowings).
		Set(goqu.Record{
			colDueTime:      lending.ToTimestamp(b.DueTime),
			colReturnedTime: nullableTime(b.ReturnedTime),
		}).
		Where(goqu.C(colID).Eq(b.ID.String())))
}

func buildSelectQueueEntryQuery(entryID uuid.UUID) (sqlQueryString, error) {
	return toSQL(dialect().
		From(tableQueueEntries).
		Select(queueEntryCols...).
		Where(goqu.C(colID).Eq(entryID.String())))
}

func buildSelectOpenQueueEntriesQuery(itemID uuid.UUID) (sqlQueryString, error) {
	return toSQL(dialect().
		From(tableQueueEntries).
		Select(queueEntryCols...).
		Where(goqu.C(colItemID).Eq(itemID.String()), openQueueEntry()).
		Order(goqu.I(colEnteredTime).Asc(), goqu.I(colID).Asc()))
}

func buildInsertQueueEntryQuery(e lending.QueueEntry) (sqlQueryString, error) {
	return toSQL(dialect().
		Insert(tableQueueEntries).
		Rows(goqu.Record{
			colID:            e.ID.String(),
			colItemID:        e.ItemID.String(),
			colRequesterID:   e.RequesterID,
			colEnteredTime:   lending.ToTimestamp(e.EnteredTime),
			colAvailableTime: nullableTime(e.AvailableTime),
			colExpired:       e.Expired,
			colFulfilledTime: nullableTime(e.FulfilledTime),
		}))
}

func buildUpdateQueueEntryQuery(e lending.QueueEntry) (sqlQueryString, error) {
	return toSQL(dialect().
		Update(tableQueueEntries).
		Set(goqu.Record{
			colAvailableTime: nullableTime(e.AvailableTime),
			colExpired:       e.Expired,
			colFulfilledTime: nullableTime(e.FulfilledTime),
		}).
		Where(goqu.C(colID).Eq(e.ID.String())))
}

func buildSelectBorrowingsDueWithinQuery(window lending.Window) (sqlQueryString, error) {
	return toSQL(dialect().
		From(tableBorrowings).
		Select(borrowingCols...).
		Where(activeBorrowing(), insideWindow(colDueTime, window)).
		Order(goqu.I(colDueTime).Asc(), goqu.I(colID).Asc()))
}

func buildSelectBorrowingsOverdueQuery(at time.Time) (sqlQueryString, error) {
	return toSQL(dialect().
		From(tableBorrowings).
		Select(borrowingCols...).
		Where(activeBorrowing(), goqu.C(colDueTime).Lt(lending.ToTimestamp(at))).
		Order(goqu.I(colDueTime).Asc(), goqu.I(colID).Asc()))
}

func buildSelectItemsReturnedWithinQuery(window lending.Window) (sqlQueryString, error) {
	return toSQL(dialect().
		From(tableBorrowings).
		Select(goqu.C(colItemID)).
		Distinct().
		Where(goqu.C(colReturnedTime).IsNotNull(), insideWindow(colReturnedTime, window)).
		Order(goqu.I(colItemID).Asc()))
}

func buildSelectQueueEntriesAvailableWithinQuery(window lending.Window) (sqlQueryString, error) {
	return toSQL(dialect().
		From(tableQueueEntries).
		Select(queueEntryCols...).
		Where(availableQueueEntry(), insideWindow(colAvailableTime, window)).
		Order(goqu.I(colEnteredTime).Asc(), goqu.I(colID).Asc()))
}

func buildSelectQueueEntriesAvailableBeforeQuery(at time.Time) (sqlQueryString, error) {
	return toSQL(dialect().
		From(tableQueueEntries).
		Select(queueEntryCols...).
		Where(availableQueueEntry(), goqu.C(colAvailableTime).Lt(lending.ToTimestamp(at))).
		Order(goqu.I(colEnteredTime).Asc(), goqu.I(colID).Asc()))
}

func buildSeedWatermarkQuery(at time.Time) (sqlQueryString, error) {
	return toSQL(dialect().
		Insert(tableWatermark).
		Rows(goqu.Record{colID: watermarkRowID, colLastRunTime: lending.ToTimestamp(at)}).
		OnConflict(goqu.DoNothing()))
}

func buildSelectWatermarkQuery() (sqlQueryString, error) {
	return toSQL(dialect().
		From(tableWatermark).
		Select(colLastRunTime).
		Where(goqu.C(colID).Eq(watermarkRowID)))
}

// buildAcquirePassLeaseQuery takes the lease if it is free, expired or held by owner already.
// The UPDATE returns the watermark only when the lease was taken.
func buildAcquirePassLeaseQuery(owner uuid.UUID, now time.Time, until time.Time) (sqlQueryString, error) {
	return toSQL(dialect().
		Update(tableWatermark).
		Set(goqu.Record{
			colLeaseOwner: owner.String(),
			colLeaseUntil: lending.ToTimestamp(until),
		}).
		Where(
			goqu.C(colID).Eq(watermarkRowID),
			goqu.Or(
				goqu.C(colLeaseOwner).IsNull(),
				goqu.C(colLeaseOwner).Eq(owner.String()),
				goqu.C(colLeaseUntil).Lte(lending.ToTimestamp(now)),
			),
		).
		Returning(colLastRunTime))
}

func buildReleasePassLeaseQuery(owner uuid.UUID) (sqlQueryString, error) {
	return toSQL(dialect().
		Update(tableWatermark).
		Set(goqu.Record{colLeaseOwner: nil, colLeaseUntil: nil}).
		Where(goqu.C(colID).Eq(watermarkRowID), goqu.C(colLeaseOwner).Eq(owner.String())))
}

func buildAdvanceWatermarkQuery(to time.Time) (sqlQueryString, error) {
	return toSQL(dialect().
		Update(tableWatermark).
		Set(goqu.Record{
			colLastRunTime: goqu.Func("GREATEST", goqu.C(colLastRunTime), lending.ToTimestamp(to)),
		}).
		Where(goqu.C(colID).Eq(watermarkRowID)))
}
