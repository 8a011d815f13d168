// Package core contains the state snapshot and the decision types shared by the lending rules.
//
// A rule never touches the store. It receives an ItemState loaded under the item's row lock and returns a
// DecisionResult that lists the Changes to persist. The shell applies those changes in the same transaction.
//
// In Domain-Driven Design or Hexagonal Architecture terminology, this would be
// called the 'domain' layer.
package core
