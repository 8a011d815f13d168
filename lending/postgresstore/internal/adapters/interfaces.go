package adapters

import "context"

// DBQuerier runs plain SQL statements.
type DBQuerier interface {
	Query(ctx context.Context, query string) (DBRows, error)
	Exec(ctx context.Context, query string) (DBResult, error)
}

// DBAdapter defines the database operations needed by the lending store.
type DBAdapter interface {
	DBQuerier

	// QueryPrimary always reads from the primary, even if a replica is configured.
	QueryPrimary(ctx context.Context, query string) (DBRows, error)

	// BeginTx starts a read-committed transaction on the primary.
	BeginTx(ctx context.Context) (DBTx, error)
}

// DBTx is an open transaction.
type DBTx interface {
	DBQuerier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBResult defines the interface for execution results.
type DBResult interface {
	RowsAffected() (int64, error)
}
