// Package adapters provide database adapter implementations for the PostgreSQL lending store.
//
// The adapters support pgx.Pool, sql.DB and sqlx.DB behind one DBAdapter interface, so the store
// runs the same SQL and the same transactions on any of them.
package adapters
