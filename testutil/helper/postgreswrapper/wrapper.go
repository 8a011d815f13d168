package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/lending-daemon-go/lending/postgresstore"
	"github.com/AntonStoeckl/lending-daemon-go/testutil/postgres/config"
)

// Engine type constants
const (
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"
)

const truncateQuery = "TRUNCATE TABLE borrowings, queue_entries, watermark, items"

// Wrapper interface to abstract over different engine types
type Wrapper interface {
	GetStore() *postgresstore.Store
	Exec(ctx context.Context, query string) error
	Close()
}

// PGXPoolWrapper wraps pgxpool-based testing
type PGXPoolWrapper struct {
	pool  *pgxpool.Pool
	store *postgresstore.Store
}

func (e *PGXPoolWrapper) GetStore() *postgresstore.Store {
	return e.store
}

func (e *PGXPoolWrapper) Exec(ctx context.Context, query string) error {
	_, err := e.pool.Exec(ctx, query)
	return err
}

func (e *PGXPoolWrapper) Close() {
	e.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing
type SQLDBWrapper struct {
	db    *sql.DB
	store *postgresstore.Store
}

func (e *SQLDBWrapper) GetStore() *postgresstore.Store {
	return e.store
}

func (e *SQLDBWrapper) Exec(ctx context.Context, query string) error {
	_, err := e.db.ExecContext(ctx, query)
	return err
}

func (e *SQLDBWrapper) Close() {
	_ = e.db.Close() // ignore error
}

// SQLXWrapper wraps sqlx.DB-based testing
type SQLXWrapper struct {
	db    *sqlx.DB
	store *postgresstore.Store
}

func (e *SQLXWrapper) GetStore() *postgresstore.Store {
	return e.store
}

func (e *SQLXWrapper) Exec(ctx context.Context, query string) error {
	_, err := e.db.ExecContext(ctx, query)
	return err
}

func (e *SQLXWrapper) Close() {
	_ = e.db.Close() // ignore error
}

// CreateWrapperWithTestConfig creates the wrapper selected by ADAPTER_TYPE and migrates the schema.
// It skips the test if the database is not reachable.
func CreateWrapperWithTestConfig(t testing.TB, options ...postgresstore.Option) Wrapper {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := createWrapper(ctx, t, options...)

	require.NoError(t, wrapper.GetStore().Migrate(ctx), "error migrating the test database")

	return wrapper
}

func createWrapper(ctx context.Context, t testing.TB, options ...postgresstore.Option) Wrapper {
	engineTypeFromEnv := strings.ToLower(os.Getenv("ADAPTER_TYPE"))

	switch engineTypeFromEnv {
	case typePGXPool, "":
		pool, err := config.PostgresPGXPoolTestPool(ctx)
		skipIfUnreachable(t, err)

		store, err := postgresstore.NewStoreFromPGXPool(pool, options...)
		require.NoError(t, err, "error creating lending store")

		return &PGXPoolWrapper{pool: pool, store: store}

	case typeSQLDB:
		db, err := config.PostgresSQLDBTestConfig(ctx)
		skipIfUnreachable(t, err)

		store, err := postgresstore.NewStoreFromSQLDB(db, options...)
		require.NoError(t, err, "error creating lending store")

		return &SQLDBWrapper{db: db, store: store}

	case typeSQLXDB:
		db, err := config.PostgresSQLXTestConfig(ctx)
		skipIfUnreachable(t, err)

		store, err := postgresstore.NewStoreFromSQLX(db, options...)
		require.NoError(t, err, "error creating lending store")

		return &SQLXWrapper{db: db, store: store}

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", engineTypeFromEnv))
	}
}

func skipIfUnreachable(t testing.TB, err error) {
	t.Helper()

	if err != nil {
		t.Skipf("test database not reachable: %v", err)
	}
}

// CleanUp empties all lending tables.
func CleanUp(t testing.TB, wrapper Wrapper) {
	t.Helper()

	require.NoError(t, wrapper.Exec(context.Background(), truncateQuery), "error cleaning up the lending tables")
}
