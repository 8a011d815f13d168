package postgresstore

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// ErrBuildingQueryFailed is returned when goqu fails to render a statement.
var ErrBuildingQueryFailed = errors.New("building the sql query failed")

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"

	errorTypeConcurrencyConflict = "concurrency_conflict"
	errorTypeDuplicateRequest    = "duplicate_request"
	errorTypeNotFound            = "not_found"
	errorTypeBuildQuery          = "build_query"
	errorTypeDatabase            = "database"
	errorTypeRejected            = "rejected"
)

// sqlState extracts the SQLSTATE code from pgx and lib/pq errors.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	return ""
}

// mapDBError turns a driver error into the lending error taxonomy.
func mapDBError(err error) error {
	if err == nil {
		return nil
	}

	switch sqlState(err) {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return errors.Join(lending.ErrConcurrencyConflict, err)
	case sqlStateUniqueViolation:
		return errors.Join(lending.ErrDuplicateRequest, err)
	default:
		return errors.Join(lending.ErrStoreUnavailable, err)
	}
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, lending.ErrConcurrencyConflict):
		return errorTypeConcurrencyConflict
	case errors.Is(err, lending.ErrDuplicateRequest):
		return errorTypeDuplicateRequest
	case errors.Is(err, lending.ErrItemNotFound),
		errors.Is(err, lending.ErrBorrowingNotFound),
		errors.Is(err, lending.ErrQueueEntryNotFound):
		return errorTypeNotFound
	case errors.Is(err, ErrBuildingQueryFailed):
		return errorTypeBuildQuery
	case errors.Is(err, lending.ErrStoreUnavailable):
		return errorTypeDatabase
	default:
		return errorTypeRejected
	}
}
