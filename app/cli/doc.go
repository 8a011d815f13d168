// Package cli implements the lendingd command line.
//
// Every command loads the configuration (defaults, lending.yaml, LENDING_* environment variables, flags),
// wires the lending store, the rule handlers, the session and the daemon scheduler, runs and closes them again.
// Errors carry an exit code: 1 when a rule rejected the request or a daemon pass stayed incomplete,
// 2 when configuration, store or notifier could not be used.
package cli
