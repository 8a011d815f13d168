package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AntonStoeckl/lending-daemon-go/app/shell/config"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// Version is overwritten at build time with -ldflags "-X .../app/cli.Version=...".
var Version = "dev"

const annotationSkipConfig = "skip_config"

// Flag names that override configuration keys.
const (
	flagConfig          = "config"
	flagJSON            = "json"
	flagLogLevel        = "log-level"
	flagLogFormat       = "log-format"
	flagDatabaseAdapter = "database-adapter"
	flagDatabaseDSN     = "database-dsn"
	flagDryRun          = "dry-run"
	flagInterval        = "interval"
)

var flagKeys = map[string]string{
	flagLogLevel:        config.KeyLoggingLevel,
	flagLogFormat:       config.KeyLoggingFormat,
	flagDatabaseAdapter: config.KeyDatabaseAdapter,
	flagDatabaseDSN:     config.KeyDatabaseDSN,
	flagDryRun:          config.KeyDaemonDryRun,
	flagInterval:        config.KeyDaemonInterval,
}

// RootOptions holds global flags and the configuration loaded for the running command.
type RootOptions struct {
	ConfigFile string
	JSON       bool

	// Clock allows overriding the wall clock (for testing). If nil, defaults to time.Now.
	Clock func() time.Time

	// Store allows injecting the lending store (for testing). If nil, database.adapter decides.
	Store lending.Store

	Config config.Config
}

func (o *RootOptions) now() time.Time {
	if o.Clock == nil {
		return time.Now()
	}

	return o.Clock()
}

// NewRootCommand creates the root command of lendingd.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lendingd",
		Short: "lendingd - lending rules and the deadline daemon",
		Long: `lendingd lends copies of catalog items, keeps a FIFO queue per item and runs the
deadline daemon that reminds borrowers, promotes the queue and expires lapsed queue positions.

Configuration is read from lending.yaml (or --config), LENDING_* environment variables and flags.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[annotationSkipConfig] == "true" {
				return nil
			}

			return loadConfig(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, flagConfig, "", "config file (default ./lending.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.JSON, flagJSON, false, "print results as JSON")
	cmd.PersistentFlags().String(flagLogLevel, "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().String(flagLogFormat, "", "log format (text|json)")
	cmd.PersistentFlags().String(flagDatabaseAdapter, "", "store adapter (pgx.pool|sql.db|sqlx.db|memory)")
	cmd.PersistentFlags().String(flagDatabaseDSN, "", "postgres connection string")

	cmd.AddCommand(NewDaemonCommand(opts))
	cmd.AddCommand(NewBorrowCommand(opts))
	cmd.AddCommand(NewDeliverCommand(opts))
	cmd.AddCommand(NewExtendCommand(opts))
	cmd.AddCommand(NewItemsCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewPrintConfigCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// loadConfig reads file and environment and lets explicitly set flags win.
func loadConfig(cmd *cobra.Command, opts *RootOptions) error {
	v, err := config.NewViper(opts.ConfigFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read configuration", err)
	}

	if err := bindFlags(cmd, v); err != nil {
		return WrapExitError(ExitCommandError, "failed to bind flags", err)
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	opts.Config = cfg

	return nil
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var err error

	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}

		err = errors.Join(err, v.BindPFlag(key, flag))
	}

	return err
}
