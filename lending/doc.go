// Package lending provides the core types and abstractions of the temporal lending state machine.
//
// The package defines the records a lending store holds, the policy value object that carries
// loan terms and reminder lead times, the store boundary consumed by the lending rules and the
// deadline daemon, and the dependency-free observability interfaces shared by all components.
//
// Records:
//   - Item: a catalog entry with one or more physical copies (Capacity)
//   - Borrowing: an open or closed loan of one copy to a borrower
//   - QueueEntry: a FIFO reservation recorded when no copy was free at request time
//   - Watermark: the end of the last completed daemon pass
//
// A QueueEntry moves through WAITING -> AVAILABLE -> {FULFILLED, EXPIRED}.
//
// Common usage pattern:
//
//	policy := lending.DefaultPolicy()
//	if err := policy.Validate(); err != nil {
//		// handle error
//	}
//
//	err := store.InTx(ctx, func(ctx context.Context, tx lending.Tx) error {
//		item, err := tx.LockItem(ctx, itemID)
//		if err != nil {
//			return err
//		}
//		active, err := tx.ActiveBorrowings(ctx, item.ID)
//		// decide, then write through tx
//		return err
//	})
package lending
