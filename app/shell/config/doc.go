// Package config loads the lendingd configuration and builds the infrastructure it describes.
//
// Settings come from a YAML file, LENDING_ prefixed environment variables and command line flags, with flags
// taking precedence over the environment and the environment over the file. Every key has a default, so an
// empty configuration runs the daemon against a local Postgres with mail sending disabled.
//
// Besides the Config value the package opens the Postgres connections for all three store adapters, builds
// the slog handler and sets up the OpenTelemetry providers.
package config
