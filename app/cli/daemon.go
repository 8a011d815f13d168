package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/lending-daemon-go/app/daemon"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

const logMsgDaemonDisabled = "daemon is disabled by configuration, nothing to do"

// DaemonOptions holds flags shared by the daemon subcommands.
type DaemonOptions struct {
	*RootOptions
	At string
}

// NewDaemonCommand creates the daemon command group.
func NewDaemonCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DaemonOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the deadline daemon",
	}

	cmd.PersistentFlags().Bool(flagDryRun, false, "log notifications instead of sending them")

	cmd.AddCommand(newRunPassCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))

	return cmd
}

func newRunPassCommand(opts *DaemonOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-pass",
		Short: "Run a single daemon pass",
		Long: `Run a single daemon pass over the window since the last completed pass.

The pass sends borrowing deadline and overdue reminders, promotes queue entries for returned
copies, warns and expires queue positions and finally advances the watermark. A pass with
records that could not be handled keeps the watermark and exits with code 1, so the next
pass covers the same window again.

Example:
  lendingd daemon run-pass
  lendingd daemon run-pass --dry-run --at 2024-01-05T09:00:00Z`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "pass time in RFC 3339 (default now)")

	return cmd
}

func runPass(ctx context.Context, opts *DaemonOptions, out io.Writer, logOutput io.Writer) error {
	now := opts.now()
	if opts.At != "" {
		at, err := time.Parse(time.RFC3339, opts.At)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --at", err)
		}

		now = at
	}

	a, err := newApp(ctx, opts.RootOptions, logOutput)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if !opts.Config.Daemon.Enabled {
		a.obs.logger.Warn(logMsgDaemonDisabled)
		return nil
	}

	scheduler, err := a.scheduler(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create the daemon", err)
	}

	report, err := scheduler.RunPass(ctx, now)

	switch {
	case errors.Is(err, lending.ErrPassInProgress):
		// The other pass covers the window.
		return printer{w: out, asJSON: opts.JSON}.print(passOutput{Skipped: true}, func(w io.Writer) {
			_, _ = fmt.Fprintln(w, "skipped: another daemon pass is in progress")
		})

	case errors.Is(err, daemon.ErrPassIncomplete):
		if printErr := printPassReport(out, opts.JSON, report); printErr != nil {
			return printErr
		}

		return WrapExitError(ExitFailure, "daemon pass incomplete", err)

	case err != nil:
		return WrapExitError(ExitCommandError, "daemon pass failed", err)
	}

	return printPassReport(out, opts.JSON, report)
}

func newWatchCommand(opts *DaemonOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run daemon passes periodically until interrupted",
		Long: `Run a daemon pass right away and then every --interval (daemon.interval) until SIGINT or SIGTERM.

Failed passes are logged. The next pass retries their window.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(cmd.Context(), opts, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().Duration(flagInterval, 0, "time between passes (default daemon.interval)")

	return cmd
}

func watch(ctx context.Context, opts *DaemonOptions, logOutput io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts.RootOptions, logOutput)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if !opts.Config.Daemon.Enabled {
		a.obs.logger.Warn(logMsgDaemonDisabled)
		return nil
	}

	scheduler, err := a.scheduler(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create the daemon", err)
	}

	if err := scheduler.Watch(ctx, opts.Config.Daemon.Interval); err != nil {
		return WrapExitError(ExitCommandError, "daemon stopped", err)
	}

	return nil
}

type passOutput struct {
	Skipped              bool           `json:"skipped"`
	WindowAfter          *time.Time     `json:"window_after,omitempty"`
	WindowUntil          *time.Time     `json:"window_until,omitempty"`
	StepRecords          map[string]int `json:"step_records,omitempty"`
	NotificationsSent    int            `json:"notifications_sent"`
	NotificationFailures int            `json:"notification_failures"`
	Promotions           int            `json:"promotions"`
	Expirations          int            `json:"expirations"`
	FailedRecords        int            `json:"failed_records"`
	WatermarkAdvanced    bool           `json:"watermark_advanced"`
}

func toPassOutput(report daemon.PassReport) passOutput {
	return passOutput{
		WindowAfter:          &report.Window.After,
		WindowUntil:          &report.Window.Until,
		StepRecords:          report.StepRecords,
		NotificationsSent:    report.NotificationsSent,
		NotificationFailures: report.NotificationFailures,
		Promotions:           report.Promotions,
		Expirations:          report.Expirations,
		FailedRecords:        report.FailedRecords,
		WatermarkAdvanced:    report.WatermarkAdvanced,
	}
}

func printPassReport(out io.Writer, asJSON bool, report daemon.PassReport) error {
	result := toPassOutput(report)

	return printer{w: out, asJSON: asJSON}.print(result, func(w io.Writer) {
		printPassOutput(w, result)
	})
}

func printPassOutput(w io.Writer, result passOutput) {
	_, _ = fmt.Fprintf(w, "window:        (%s, %s]\n", formatTimePtr(result.WindowAfter), formatTimePtr(result.WindowUntil))

	steps := make([]string, 0, len(result.StepRecords))
	for step := range result.StepRecords {
		steps = append(steps, step)
	}
	sort.Strings(steps)

	for _, step := range steps {
		_, _ = fmt.Fprintf(w, "  %-22s %d\n", step, result.StepRecords[step])
	}

	_, _ = fmt.Fprintf(w, "notifications: %d sent, %d failed\n", result.NotificationsSent, result.NotificationFailures)
	_, _ = fmt.Fprintf(w, "promotions:    %d\n", result.Promotions)
	_, _ = fmt.Fprintf(w, "expirations:   %d\n", result.Expirations)
	_, _ = fmt.Fprintf(w, "failed:        %d\n", result.FailedRecords)
	_, _ = fmt.Fprintf(w, "watermark:     advanced=%t\n", result.WatermarkAdvanced)
}
