package postgresstore_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
	"github.com/AntonStoeckl/lending-daemon-go/lending/postgresstore"
	"github.com/AntonStoeckl/lending-daemon-go/testutil/helper"
	"github.com/AntonStoeckl/lending-daemon-go/testutil/helper/postgreswrapper"
)

func Test_NewStore_RejectsNilConnections(t *testing.T) {
	_, err := postgresstore.NewStoreFromPGXPool(nil)
	assert.ErrorIs(t, err, lending.ErrNilDatabaseConnection)

	_, err = postgresstore.NewStoreFromPGXPoolAndReplica(nil, (*pgxpool.Pool)(nil))
	assert.ErrorIs(t, err, lending.ErrNilDatabaseConnection)

	_, err = postgresstore.NewStoreFromSQLDB((*sql.DB)(nil))
	assert.ErrorIs(t, err, lending.ErrNilDatabaseConnection)

	_, err = postgresstore.NewStoreFromSQLX((*sqlx.DB)(nil))
	assert.ErrorIs(t, err, lending.ErrNilDatabaseConnection)
}

func Test_Store_InTx_CommitsBorrowing(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	postgreswrapper.CleanUp(t, wrapper)
	store := wrapper.GetStore()

	// arrange
	fakeClock := time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)
	item := givenItem(t, store, 1)
	borrowing := lending.Borrowing{
		ID:         uuid.New(),
		ItemID:     item.ID,
		BorrowerID: "alice",
		StartTime:  fakeClock,
		DueTime:    fakeClock.Add(30 * lending.Day),
	}

	// act
	err := store.InTx(ctx, func(ctx context.Context, tx lending.Tx) error {
		locked, lockErr := tx.LockItem(ctx, item.ID)
		if lockErr != nil {
			return lockErr
		}

		assert.Equal(t, item, locked)

		return tx.InsertBorrowing(ctx, borrowing)
	})

	// assert
	require.NoError(t, err)

	reloaded, err := store.Borrowing(ctx, borrowing.ID)
	require.NoError(t, err)
	assert.Equal(t, borrowing, reloaded)

	active, err := store.ActiveBorrowings(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func Test_Store_InTx_RollsBackOnError(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	postgreswrapper.CleanUp(t, wrapper)
	store := wrapper.GetStore()

	// arrange
	fakeClock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	item := givenItem(t, store, 1)

	// act
	err := store.InTx(ctx, func(ctx context.Context, tx lending.Tx) error {
		if insertErr := tx.InsertQueueEntry(ctx, lending.QueueEntry{
			ID:          uuid.New(),
			ItemID:      item.ID,
			RequesterID: "bob",
			EnteredTime: fakeClock,
		}); insertErr != nil {
			return insertErr
		}

		return lending.ErrQueueNonEmpty
	})

	// assert
	assert.ErrorIs(t, err, lending.ErrQueueNonEmpty)

	open, err := store.OpenQueueEntries(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func Test_Store_UniqueIndex_MapsToDuplicateRequest(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	postgreswrapper.CleanUp(t, wrapper)
	store := wrapper.GetStore()

	// arrange
	fakeClock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	item := givenItem(t, store, 2)
	insert := func() error {
		return store.InTx(ctx, func(ctx context.Context, tx lending.Tx) error {
			return tx.InsertBorrowing(ctx, lending.Borrowing{
				ID:         uuid.New(),
				ItemID:     item.ID,
				BorrowerID: "alice",
				StartTime:  fakeClock,
				DueTime:    fakeClock.Add(lending.Day),
			})
		})
	}

	// act & assert
	require.NoError(t, insert())
	assert.ErrorIs(t, insert(), lending.ErrDuplicateRequest)
}

func Test_Store_TimeQueries(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	postgreswrapper.CleanUp(t, wrapper)
	store := wrapper.GetStore()

	// arrange
	fakeClock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	item := givenItem(t, store, 3)
	window := lending.NewWindow(fakeClock.Add(lending.Day), fakeClock.Add(2*lending.Day))

	dueInside := lending.Borrowing{
		ID: uuid.New(), ItemID: item.ID, BorrowerID: "alice", StartTime: fakeClock, DueTime: fakeClock.Add(2 * lending.Day),
	}
	dueOnLowerBound := lending.Borrowing{
		ID: uuid.New(), ItemID: item.ID, BorrowerID: "bob", StartTime: fakeClock, DueTime: fakeClock.Add(lending.Day),
	}
	returned := lending.Borrowing{
		ID: uuid.New(), ItemID: item.ID, BorrowerID: "carol", StartTime: fakeClock, DueTime: fakeClock.Add(10 * lending.Day),
		ReturnedTime: lending.TimePtr(fakeClock.Add(36 * time.Hour)),
	}
	available := lending.QueueEntry{
		ID: uuid.New(), ItemID: item.ID, RequesterID: "dave", EnteredTime: fakeClock,
		AvailableTime: lending.TimePtr(fakeClock.Add(2 * lending.Day)),
	}

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx lending.Tx) error {
		for _, b := range []lending.Borrowing{dueInside, dueOnLowerBound, returned} {
			if err := tx.InsertBorrowing(ctx, b); err != nil {
				return err
			}
		}

		return tx.InsertQueueEntry(ctx, available)
	}))

	// act
	due, err := store.BorrowingsDueWithin(ctx, window)
	require.NoError(t, err)
	overdue, err := store.BorrowingsOverdueAt(ctx, fakeClock.Add(2*lending.Day))
	require.NoError(t, err)
	returnedItems, err := store.ItemsReturnedWithin(ctx, window)
	require.NoError(t, err)
	availableWithin, err := store.QueueEntriesAvailableWithin(ctx, window)
	require.NoError(t, err)
	availableBefore, err := store.QueueEntriesAvailableBefore(ctx, fakeClock.Add(2*lending.Day))
	require.NoError(t, err)

	// assert
	require.Len(t, due, 1)
	assert.Equal(t, dueInside.ID, due[0].ID)
	require.Len(t, overdue, 1)
	assert.Equal(t, dueOnLowerBound.ID, overdue[0].ID)
	assert.Equal(t, []uuid.UUID{item.ID}, returnedItems)
	require.Len(t, availableWithin, 1)
	assert.Equal(t, available.ID, availableWithin[0].ID)
	assert.Empty(t, availableBefore)
}

func Test_Store_WatermarkAndPassLease(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	postgreswrapper.CleanUp(t, wrapper)
	store := wrapper.GetStore()

	// arrange
	fakeClock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first, second := uuid.New(), uuid.New()

	_, _, err := store.AcquirePassLease(ctx, first, fakeClock, fakeClock.Add(time.Minute))
	assert.ErrorIs(t, err, lending.ErrStoreUnavailable, "watermark is not seeded yet")

	require.NoError(t, store.SeedWatermark(ctx, fakeClock))
	require.NoError(t, store.SeedWatermark(ctx, fakeClock.Add(time.Hour)))

	// act & assert
	watermark, ok, err := store.AcquirePassLease(ctx, first, fakeClock, fakeClock.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, fakeClock, watermark.LastRunTime)

	_, ok, err = store.AcquirePassLease(ctx, second, fakeClock.Add(time.Second), fakeClock.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.AdvanceWatermark(ctx, fakeClock.Add(2*time.Hour)))
	require.NoError(t, store.AdvanceWatermark(ctx, fakeClock.Add(time.Hour)))
	require.NoError(t, store.ReleasePassLease(ctx, first))

	watermark, ok, err = store.AcquirePassLease(ctx, second, fakeClock.Add(time.Second), fakeClock.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, fakeClock.Add(2*time.Hour), watermark.LastRunTime)
}

func Test_Store_Observability(t *testing.T) {
	// setup
	ctx := context.Background()
	logHandler := helper.NewLogHandlerSpy(false)
	metricsCollector := helper.NewMetricsCollectorSpy(true)
	tracingCollector := helper.NewTracingCollectorSpy(true)
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(
		t,
		postgresstore.WithContextualLogger(slog.New(logHandler)),
		postgresstore.WithMetrics(metricsCollector),
		postgresstore.WithTracing(tracingCollector),
	)
	defer wrapper.Close()
	postgreswrapper.CleanUp(t, wrapper)
	store := wrapper.GetStore()

	// act
	_, err := store.Item(ctx, uuid.New())
	item := givenItem(t, store, 1)
	_, itemsErr := store.Items(ctx)

	// assert
	assert.ErrorIs(t, err, lending.ErrItemNotFound)
	require.NoError(t, itemsErr)
	assert.NotEmpty(t, item.ID)

	assert.True(t, logHandler.HasDebugLogWithMessage("executed sql for: items").WithDurationMS().Assert())
	assert.True(t, logHandler.HasInfoLogWithMessage("lending store operation: items").WithDurationMS().Assert())
	assert.True(t, metricsCollector.HasDurationRecordForMetric("lendingstore_operation_duration_seconds").
		WithOperation("items").WithStatus("success").Assert())
	assert.True(t, metricsCollector.HasCounterRecordForMetric("lendingstore_database_errors_total").
		WithOperation("item").WithErrorType("not_found").Assert())
	assert.True(t, tracingCollector.HasSpanWithStatus("lendingstore.items", "success"))
	assert.True(t, tracingCollector.HasSpanWithStatus("lendingstore.item", "error"))
}

func givenItem(t *testing.T, store *postgresstore.Store, capacity int) lending.Item {
	t.Helper()

	item, err := lending.BuildItem("Widget", "978-0-00-000000-0", capacity)
	require.NoError(t, err, "error in arranging test data")
	require.NoError(t, store.InsertItem(context.Background(), item), "error in arranging test data")

	return item
}
