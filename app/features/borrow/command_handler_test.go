package borrow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/lending-daemon-go/app/features/borrow"
	"github.com/AntonStoeckl/lending-daemon-go/app/shell"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
	"github.com/AntonStoeckl/lending-daemon-go/lending/memstore"
	"github.com/AntonStoeckl/lending-daemon-go/testutil/helper"
)

func Test_CommandHandler_Handle_Success_Borrows(t *testing.T) {
	// setup
	ctx := context.Background()
	store := memstore.New()
	handler := borrow.NewCommandHandler(store)
	fakeClock := time.Unix(0, 0).UTC()

	// arrange
	item := helper.GivenItem(t, store, "Widget", 1)

	// act
	result, handlerResult, err := handler.Handle(ctx, borrow.BuildCommand(item.ID, "alice", fakeClock))

	// assert
	require.NoError(t, err)
	assert.False(t, handlerResult.Idempotent)
	assert.Equal(t, 1, handlerResult.RetryAttempts)
	require.NotNil(t, result.Borrowing)
	assert.False(t, result.Queued())

	active, err := store.ActiveBorrowings(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, *result.Borrowing, active[0])
}

func Test_CommandHandler_Handle_Success_QueuesWhenAllCopiesAreLent(t *testing.T) {
	// setup
	ctx := context.Background()
	store := memstore.New()
	handler := borrow.NewCommandHandler(store)
	fakeClock := time.Unix(0, 0).UTC()

	// arrange
	item := helper.GivenItem(t, store, "Widget", 1)
	_, _, err := handler.Handle(ctx, borrow.BuildCommand(item.ID, "alice", fakeClock))
	require.NoError(t, err)

	// act
	result, _, err := handler.Handle(ctx, borrow.BuildCommand(item.ID, "bob", fakeClock.Add(lending.Day)))

	// assert
	require.NoError(t, err)
	require.True(t, result.Queued())
	assert.Nil(t, result.Borrowing)

	open, err := store.OpenQueueEntries(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "bob", open[0].RequesterID)
}

func Test_CommandHandler_Handle_Success_ClaimsReservation(t *testing.T) {
	// setup
	ctx := context.Background()
	store := memstore.New()
	handler := borrow.NewCommandHandler(store)
	fakeClock := time.Unix(0, 0).UTC()

	// arrange
	item := helper.GivenItem(t, store, "Widget", 1)
	reservation := helper.GivenAvailableEntry(t, store, item.ID, "bob", fakeClock, fakeClock.Add(time.Hour))

	// act
	result, _, err := handler.Handle(ctx, borrow.BuildCommand(item.ID, "bob", fakeClock.Add(2*time.Hour)))

	// assert
	require.NoError(t, err)
	require.NotNil(t, result.Borrowing)

	fulfilled, err := store.QueueEntry(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, lending.QueueEntryFulfilled, fulfilled.State())

	open, err := store.OpenQueueEntries(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func Test_CommandHandler_Handle_Error_DuplicateRequestChangesNothing(t *testing.T) {
	// setup
	ctx := context.Background()
	store := memstore.New()
	handler := borrow.NewCommandHandler(store)
	fakeClock := time.Unix(0, 0).UTC()

	// arrange
	item := helper.GivenItem(t, store, "Widget", 2)
	_, _, err := handler.Handle(ctx, borrow.BuildCommand(item.ID, "alice", fakeClock))
	require.NoError(t, err)

	// act
	_, handlerResult, err := handler.Handle(ctx, borrow.BuildCommand(item.ID, "alice", fakeClock.Add(time.Hour)))

	// assert
	assert.ErrorIs(t, err, lending.ErrDuplicateRequest)
	assert.Equal(t, 1, handlerResult.RetryAttempts, "rule errors are not retried")

	active, err := store.ActiveBorrowings(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func Test_CommandHandler_Handle_Error_UnknownItem(t *testing.T) {
	// setup
	ctx := context.Background()
	store := memstore.New()
	handler := borrow.NewCommandHandler(store, borrow.WithRetryOptions(shell.WithMaxAttempts(1)))

	// act
	_, _, err := handler.Handle(ctx, borrow.BuildCommand(helper.GivenUniqueID(t), "alice", time.Unix(0, 0).UTC()))

	// assert
	assert.ErrorIs(t, err, lending.ErrItemNotFound)
}

func Test_CommandHandler_Handle_WithPolicy(t *testing.T) {
	// setup
	ctx := context.Background()
	store := memstore.New()
	policy := lending.DefaultPolicy()
	policy.LoanTerm = lending.Days(7)
	handler := borrow.NewCommandHandler(store, borrow.WithPolicy(policy))
	fakeClock := time.Unix(0, 0).UTC()

	// arrange
	item := helper.GivenItem(t, store, "Widget", 1)

	// act
	result, _, err := handler.Handle(ctx, borrow.BuildCommand(item.ID, "alice", fakeClock))

	// assert
	require.NoError(t, err)
	assert.Equal(t, fakeClock.Add(7*lending.Day), result.Borrowing.DueTime)
}
