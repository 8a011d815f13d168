package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
	"github.com/AntonStoeckl/lending-daemon-go/lending/memstore"
)

func Test_Store_InTx_CommitsOnSuccess(t *testing.T) {
	// setup
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()
	store := memstore.New()
	item := givenItem(t, store, 1)

	borrowing := lending.Borrowing{
		ID:         uuid.New(),
		ItemID:     item.ID,
		BorrowerID: "alice",
		StartTime:  fakeClock,
		DueTime:    fakeClock.Add(lending.Day),
	}

	// act
	err := store.InTx(ctx, func(ctx context.Context, tx lending.Tx) error {
		return tx.InsertBorrowing(ctx, borrowing)
	})

	// assert
	require.NoError(t, err)
	active, err := store.ActiveBorrowings(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, lending.Borrowings{borrowing}, active)
}

func Test_Store_InTx_RollsBackOnError(t *testing.T) {
	// setup
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()
	store := memstore.New()
	item := givenItem(t, store, 1)
	errBoom := errors.New("boom")

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

		return errBoom
	})

	// assert
	assert.ErrorIs(t, err, errBoom)
	open, err := store.OpenQueueEntries(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func Test_Store_Tx_IsInactiveAfterInTxReturns(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	item := givenItem(t, store, 1)

	var leaked lending.Tx
	require.NoError(t, store.InTx(ctx, func(_ context.Context, tx lending.Tx) error {
		leaked = tx
		return nil
	}))

	_, err := leaked.LockItem(ctx, item.ID)
	assert.ErrorIs(t, err, memstore.ErrTransactionNotActive)
}

func Test_Store_InsertBorrowing_RejectsSecondActiveBorrowingOfSameBorrower(t *testing.T) {
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()
	store := memstore.New()
	item := givenItem(t, store, 2)

	givenBorrowing(t, store, item.ID, "alice", fakeClock, fakeClock.Add(lending.Day))

	err := store.InTx(ctx, func(ctx context.Context, tx lending.Tx) error {
		return tx.InsertBorrowing(ctx, lending.Borrowing{
			ID:         uuid.New(),
			ItemID:     item.ID,
			BorrowerID: "alice",
			StartTime:  fakeClock,
			DueTime:    fakeClock.Add(lending.Day),
		})
	})

	assert.ErrorIs(t, err, lending.ErrDuplicateRequest)
}

func Test_Store_OpenQueueEntries_AreFIFO(t *testing.T) {
	// arrange
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()
	store := memstore.New()
	item := givenItem(t, store, 1)

	second := givenQueueEntry(t, store, item.ID, "bob", fakeClock.Add(2*time.Hour))
	first := givenQueueEntry(t, store, item.ID, "carol", fakeClock.Add(time.Hour))

	// act
	open, err := store.OpenQueueEntries(ctx, item.ID)

	// assert
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, first.ID, open[0].ID)
	assert.Equal(t, second.ID, open[1].ID)
}

func Test_Store_TimeQueries(t *testing.T) {
	// arrange
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()
	store := memstore.New()
	item := givenItem(t, store, 3)
	window := lending.NewWindow(fakeClock.Add(lending.Day), fakeClock.Add(2*lending.Day))

	dueInside := givenBorrowing(t, store, item.ID, "alice", fakeClock, fakeClock.Add(2*lending.Day))
	givenBorrowing(t, store, item.ID, "bob", fakeClock, fakeClock.Add(lending.Day))
	returned := givenBorrowing(t, store, item.ID, "carol", fakeClock, fakeClock.Add(10*lending.Day))
	givenReturned(t, store, returned, fakeClock.Add(36*time.Hour))

	// act
	due, err := store.BorrowingsDueWithin(ctx, window)
	require.NoError(t, err)
	overdue, err := store.BorrowingsOverdueAt(ctx, fakeClock.Add(2*lending.Day))
	require.NoError(t, err)
	returnedItems, err := store.ItemsReturnedWithin(ctx, window)
	require.NoError(t, err)

	// assert
	require.Len(t, due, 1)
	assert.Equal(t, dueInside.ID, due[0].ID)
	require.Len(t, overdue, 1)
	assert.Equal(t, "bob", overdue[0].BorrowerID)
	assert.Equal(t, []uuid.UUID{item.ID}, returnedItems)
}

func Test_Store_QueueEntriesAvailable(t *testing.T) {
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()
	store := memstore.New()
	item := givenItem(t, store, 1)

	waiting := givenQueueEntry(t, store, item.ID, "alice", fakeClock)
	available := givenQueueEntry(t, store, item.ID, "bob", fakeClock)
	available.AvailableTime = lending.TimePtr(fakeClock.Add(lending.Day))
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx lending.Tx) error {
		return tx.UpdateQueueEntry(ctx, available)
	}))

	within, err := store.QueueEntriesAvailableWithin(ctx, lending.NewWindow(fakeClock, fakeClock.Add(lending.Day)))
	require.NoError(t, err)
	before, err := store.QueueEntriesAvailableBefore(ctx, fakeClock.Add(lending.Day))
	require.NoError(t, err)

	require.Len(t, within, 1)
	assert.Equal(t, available.ID, within[0].ID)
	assert.NotEqual(t, waiting.ID, within[0].ID)
	assert.Empty(t, before, "available time equal to the cut-off is not before it")
}

func Test_Store_Watermark_IsNonDecreasing(t *testing.T) {
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()
	store := memstore.New()

	_, seeded := store.Watermark()
	assert.False(t, seeded)

	require.NoError(t, store.SeedWatermark(ctx, fakeClock))
	require.NoError(t, store.SeedWatermark(ctx, fakeClock.Add(time.Hour)))
	require.NoError(t, store.AdvanceWatermark(ctx, fakeClock.Add(2*time.Hour)))
	require.NoError(t, store.AdvanceWatermark(ctx, fakeClock.Add(time.Hour)))

	watermark, seeded := store.Watermark()
	assert.True(t, seeded)
	assert.Equal(t, fakeClock.Add(2*time.Hour), watermark.LastRunTime)
}

func Test_Store_PassLease(t *testing.T) {
	// arrange
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()
	store := memstore.New()
	require.NoError(t, store.SeedWatermark(ctx, fakeClock))
	first, second := uuid.New(), uuid.New()

	// act & assert
	watermark, ok, err := store.AcquirePassLease(ctx, first, fakeClock, fakeClock.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, fakeClock, watermark.LastRunTime)

	_, ok, err = store.AcquirePassLease(ctx, second, fakeClock.Add(time.Second), fakeClock.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "live lease of another owner blocks")

	_, ok, err = store.AcquirePassLease(ctx, second, fakeClock.Add(2*time.Minute), fakeClock.Add(3*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "expired lease can be taken over")

	require.NoError(t, store.ReleasePassLease(ctx, first))
	_, ok, err = store.AcquirePassLease(ctx, first, fakeClock.Add(2*time.Minute), fakeClock.Add(3*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "release by a non-owner is ignored")

	require.NoError(t, store.ReleasePassLease(ctx, second))
	_, ok, err = store.AcquirePassLease(ctx, first, fakeClock.Add(2*time.Minute), fakeClock.Add(3*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}

func Test_Store_AcquirePassLease_RequiresSeededWatermark(t *testing.T) {
	fakeClock := time.Unix(0, 0).UTC()
	store := memstore.New()

	_, ok, err := store.AcquirePassLease(context.Background(), uuid.New(), fakeClock, fakeClock.Add(time.Minute))

	assert.False(t, ok)
	assert.ErrorIs(t, err, lending.ErrStoreUnavailable)
}

func Test_Store_UpdateItemCapacity(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	item := givenItem(t, store, 1)

	require.NoError(t, store.UpdateItemCapacity(ctx, item.ID, 3))
	assert.ErrorIs(t, store.UpdateItemCapacity(ctx, item.ID, 0), lending.ErrInvalidItem)
	assert.ErrorIs(t, store.UpdateItemCapacity(ctx, uuid.New(), 2), lending.ErrItemNotFound)

	reloaded, err := store.Item(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.Capacity)
}

func givenItem(t *testing.T, store *memstore.Store, capacity int) lending.Item {
	t.Helper()

	item, err := lending.BuildItem("Widget", "978-0-00-000000-0", capacity)
	require.NoError(t, err)
	require.NoError(t, store.InsertItem(context.Background(), item))

	return item
}

func givenBorrowing(
	t *testing.T,
	store *memstore.Store,
	itemID uuid.UUID,
	borrowerID string,
	start time.Time,
	due time.Time,
) lending.Borrowing {

	t.Helper()

	borrowing := lending.Borrowing{
		ID:         uuid.New(),
		ItemID:     itemID,
		BorrowerID: borrowerID,
		StartTime:  start,
		DueTime:    due,
	}

	require.NoError(t, store.InTx(context.Background(), func(ctx context.Context, tx lending.Tx) error {
		return tx.InsertBorrowing(ctx, borrowing)
	}))

	return borrowing
}

func givenReturned(t *testing.T, store *memstore.Store, borrowing lending.Borrowing, at time.Time) {
	t.Helper()

	borrowing.ReturnedTime = lending.TimePtr(at)

	require.NoError(t, store.InTx(context.Background(), func(ctx context.Context, tx lending.Tx) error {
		return tx.UpdateBorrowing(ctx, borrowing)
	}))
}

func givenQueueEntry(
	t *testing.T,
	store *memstore.Store,
	itemID uuid.UUID,
	requesterID string,
	entered time.Time,
) lending.QueueEntry {

	t.Helper()

	entry := lending.QueueEntry{
		ID:          uuid.New(),
		ItemID:      itemID,
		RequesterID: requesterID,
		EnteredTime: entered,
	}

	require.NoError(t, store.InTx(context.Background(), func(ctx context.Context, tx lending.Tx) error {
		return tx.InsertQueueEntry(ctx, entry)
	}))

	return entry
}
