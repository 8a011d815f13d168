package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "migrate",
		Short:         "Create or update the database schema",
		Long:          "Create the lending tables and indexes if they do not exist. Running it again is safe.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app, p printer) error {
				if err := a.migrate(ctx); err != nil {
					return WrapExitError(ExitCommandError, "migration failed", err)
				}

				return p.print(map[string]bool{"migrated": true}, func(w io.Writer) {
					_, _ = fmt.Fprintln(w, "schema is up to date")
				})
			})
		},
	}
}

// NewPrintConfigCommand creates the print-config command.
func NewPrintConfigCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "print-config",
		Short: "Print the effective configuration as JSON",
		Long: `Print the configuration after merging defaults, the config file, LENDING_* environment
variables and flags. The SMTP password file is shown by path only.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := json.MarshalIndent(opts.Config, "", "  ")
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to encode configuration", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))

			return err
		},
	}
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSkipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "lendingd %s\n", Version)
		},
	}
}
