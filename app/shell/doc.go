// Package shell is the imperative shell around the lending rules.
//
// It loads item snapshots under the item's row lock, applies decided changes to the store,
// retries transactions that lost a concurrency conflict and provides the observability helpers
// shared by the command handlers and the daemon.
//
// In Domain-Driven Design or Hexagonal Architecture terminology, this would be
// called the 'infrastructure' layer.
package shell
