package helper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// ArrangeStore is the part of a lending.Store the given* helpers need.
type ArrangeStore interface {
	lending.Catalog
	lending.Transactor
}

func GivenUniqueID(t testing.TB) uuid.UUID {
	id, err := uuid.NewV7()
	require.NoError(t, err, "error in arranging test data")

	return id
}

func GivenItem(t testing.TB, store ArrangeStore, name string, capacity int) lending.Item {
	t.Helper()

	item, err := lending.BuildItem(name, "978-0-00-000000-0", capacity)
	require.NoError(t, err, "error in arranging test data")
	require.NoError(t, store.InsertItem(context.Background(), item), "error in arranging test data")

	return item
}

func GivenBorrowing(
	t testing.TB,
	store ArrangeStore,
	itemID uuid.UUID,
	borrowerID string,
	start time.Time,
	due time.Time,
) lending.Borrowing {

	t.Helper()

	borrowing := lending.Borrowing{
		ID:         GivenUniqueID(t),
		ItemID:     itemID,
		BorrowerID: borrowerID,
		StartTime:  lending.ToTimestamp(start),
		DueTime:    lending.ToTimestamp(due),
	}

	givenInTx(t, store, func(ctx context.Context, tx lending.Tx) error {
		return tx.InsertBorrowing(ctx, borrowing)
	})

	return borrowing
}

func GivenBorrowingReturned(t testing.TB, store ArrangeStore, borrowing lending.Borrowing, at time.Time) lending.Borrowing {
	t.Helper()

	borrowing.ReturnedTime = lending.TimePtr(at)

	givenInTx(t, store, func(ctx context.Context, tx lending.Tx) error {
		return tx.UpdateBorrowing(ctx, borrowing)
	})

	return borrowing
}

func GivenWaitingEntry(
	t testing.TB,
	store ArrangeStore,
	itemID uuid.UUID,
	requesterID string,
	entered time.Time,
) lending.QueueEntry {

	t.Helper()

	entry := lending.QueueEntry{
		ID:          GivenUniqueID(t),
		ItemID:      itemID,
		RequesterID: requesterID,
		EnteredTime: lending.ToTimestamp(entered),
	}

	givenInTx(t, store, func(ctx context.Context, tx lending.Tx) error {
		return tx.InsertQueueEntry(ctx, entry)
	})

	return entry
}

func GivenAvailableEntry(
	t testing.TB,
	store ArrangeStore,
	itemID uuid.UUID,
	requesterID string,
	entered time.Time,
	available time.Time,
) lending.QueueEntry {

	t.Helper()

	entry := lending.QueueEntry{
		ID:            GivenUniqueID(t),
		ItemID:        itemID,
		RequesterID:   requesterID,
		EnteredTime:   lending.ToTimestamp(entered),
		AvailableTime: lending.TimePtr(available),
	}

	givenInTx(t, store, func(ctx context.Context, tx lending.Tx) error {
		return tx.InsertQueueEntry(ctx, entry)
	})

	return entry
}

func givenInTx(t testing.TB, store ArrangeStore, fn lending.TxFunc) {
	t.Helper()

	require.NoError(t, store.InTx(context.Background(), fn), "error in arranging test data")
}
