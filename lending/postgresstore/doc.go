// Package postgresstore provides a PostgreSQL implementation of the lending.Store interface.
//
// It supports the pgx, database/sql (lib/pq) and sqlx connection types through internal adapters.
// Every rule call runs in one read-committed transaction that locks the item row with
// SELECT ... FOR UPDATE, so writers for the same item are serialized. Serialization failures and
// deadlocks surface as lending.ErrConcurrencyConflict, unique-index violations as
// lending.ErrDuplicateRequest and all other database failures as lending.ErrStoreUnavailable.
//
// Usage examples:
//
//	// Basic usage
//	pool, _ := pgxpool.New(ctx, dsn)
//	store, _ := postgresstore.NewStoreFromPGXPool(pool)
//	_ = store.Migrate(ctx)
//
//	// With observability
//	store, _ := postgresstore.NewStoreFromPGXPool(
//		pool,
//		postgresstore.WithContextualLogger(logger),
//		postgresstore.WithMetrics(metricsCollector),
//		postgresstore.WithTracing(tracingCollector),
//	)
//
//	err := store.InTx(ctx, func(ctx context.Context, tx lending.Tx) error {
//		item, err := tx.LockItem(ctx, itemID)
//		...
//	})
package postgresstore
