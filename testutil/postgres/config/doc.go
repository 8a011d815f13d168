// Package config provides PostgreSQL connections for the lending store tests.
//
// It builds connections for every supported adapter (pgx.Pool, sql.DB, sqlx.DB) against the test
// database. The DSN can be overridden with LENDING_TEST_DSN.
package config
