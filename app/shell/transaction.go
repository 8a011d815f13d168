package shell

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/lending-daemon-go/app/core"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// LoadItemState locks the item and loads its active borrowings and open queue entries.
// Every rule decides on a state loaded this way, so concurrent commands on one item are serialized.
func LoadItemState(ctx context.Context, tx lending.Tx, itemID uuid.UUID) (core.ItemState, error) {
	item, err := tx.LockItem(ctx, itemID)
	if err != nil {
		return core.ItemState{}, err
	}

	activeBorrowings, err := tx.ActiveBorrowings(ctx, itemID)
	if err != nil {
		return core.ItemState{}, err
	}

	openQueue, err := tx.OpenQueueEntries(ctx, itemID)
	if err != nil {
		return core.ItemState{}, err
	}

	return core.ItemState{
		Item:             item,
		ActiveBorrowings: activeBorrowings,
		OpenQueue:        openQueue,
	}, nil
}

// ApplyChanges persists the changes of a decision in order.
func ApplyChanges(ctx context.Context, tx lending.Tx, changes core.Changes) error {
	for _, change := range changes {
		if err := applyChange(ctx, tx, change); err != nil {
			return err
		}
	}

	return nil
}

func applyChange(ctx context.Context, tx lending.Tx, change core.Change) error {
	switch change.Kind {
	case core.BorrowingOpenedKind:
		return tx.InsertBorrowing(ctx, change.Borrowing)
	case core.BorrowingReturnedKind, core.BorrowingExtendedKind:
		return tx.UpdateBorrowing(ctx, change.Borrowing)
	case core.QueueEnteredKind:
		return tx.InsertQueueEntry(ctx, change.QueueEntry)
	case core.QueuePositionAvailableKind, core.QueuePositionExpiredKind, core.QueuePositionFulfilledKind:
		return tx.UpdateQueueEntry(ctx, change.QueueEntry)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownChangeKind, change.Kind)
	}
}
