// Package helper provides testing utilities for the lending store, the command handlers and the daemon.
//
// It contains spies for the dependency-free observability interfaces (slog handler, metrics, tracing),
// a notifier spy, and given* helpers that arrange lending state in any lending.Store.
package helper
