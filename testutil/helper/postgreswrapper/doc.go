// Package postgreswrapper provides test utilities for abstracting over the PostgreSQL database adapters.
//
// The adapter type is determined by the ADAPTER_TYPE environment variable (pgx.pool, sql.db, sqlx.db),
// so the same test suite runs against every supported driver. Tests are skipped when the test database
// is not reachable.
//
// Usage:
//
//	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
//	defer wrapper.Close()
//
//	postgreswrapper.CleanUp(t, wrapper)
//	store := wrapper.GetStore()
package postgreswrapper
