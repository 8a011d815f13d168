// Package borrow implements the borrow lending rule.
//
// A requester borrows a copy of an item while the item has fewer active borrowings than copies,
// otherwise they join the item's queue. A promoted requester claims the copy by borrowing, which
// fulfills their queue entry. Until then any requester may take it.
//
// The rule follows the Load-Decide-Apply pattern: CommandHandler loads the item state under the
// item's row lock, the pure Decide function chooses the changes and the handler applies them in
// the same transaction.
package borrow
