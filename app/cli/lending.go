package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

type borrowingOutput struct {
	ID         uuid.UUID  `json:"id"`
	ItemID     uuid.UUID  `json:"item_id"`
	BorrowerID string     `json:"borrower_id"`
	StartTime  time.Time  `json:"start_time"`
	DueTime    time.Time  `json:"due_time"`
	Returned   *time.Time `json:"returned_time,omitempty"`
}

type queueEntryOutput struct {
	ID            uuid.UUID  `json:"id"`
	ItemID        uuid.UUID  `json:"item_id"`
	RequesterID   string     `json:"requester_id"`
	State         string     `json:"state"`
	EnteredTime   time.Time  `json:"entered_time"`
	AvailableTime *time.Time `json:"available_time,omitempty"`
}

func toBorrowingOutput(b lending.Borrowing) borrowingOutput {
	return borrowingOutput{
		ID:         b.ID,
		ItemID:     b.ItemID,
		BorrowerID: b.BorrowerID,
		StartTime:  b.StartTime,
		DueTime:    b.DueTime,
		Returned:   b.ReturnedTime,
	}
}

func toQueueEntryOutput(e lending.QueueEntry) queueEntryOutput {
	return queueEntryOutput{
		ID:            e.ID,
		ItemID:        e.ItemID,
		RequesterID:   e.RequesterID,
		State:         string(e.State()),
		EnteredTime:   e.EnteredTime,
		AvailableTime: e.AvailableTime,
	}
}

// NewBorrowCommand creates the borrow command.
func NewBorrowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "borrow <item-id> <requester>",
		Short: "Borrow a copy of an item or join its queue",
		Long: `Borrow a copy of an item. When no copy is free for the requester, the requester joins the
item's queue instead and is notified by the daemon once a copy is reserved.

Example:
  lendingd borrow 0f8fad5b-d9cb-469f-a165-70867728950e alice`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseID("item id", args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app, p printer) error {
				result, err := a.session.Borrow(ctx, itemID, args[1])
				if err != nil {
					return ruleError("borrow failed", err)
				}

				if result.Queued() {
					entry := toQueueEntryOutput(*result.QueueEntry)

					return p.print(entry, func(w io.Writer) {
						_, _ = fmt.Fprintf(w, "no copy is free, %s joined the queue (entry %s)\n", entry.RequesterID, entry.ID)
					})
				}

				borrowing := toBorrowingOutput(*result.Borrowing)

				return p.print(borrowing, func(w io.Writer) {
					_, _ = fmt.Fprintf(w, "borrowing %s for %s, due %s\n",
						borrowing.ID, borrowing.BorrowerID, formatTime(borrowing.DueTime))
				})
			})
		},
	}
}

// NewDeliverCommand creates the deliver command.
func NewDeliverCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "deliver <borrowing-id>",
		Short:         "Return a borrowed copy",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			borrowingID, err := parseID("borrowing id", args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app, p printer) error {
				result, err := a.session.Deliver(ctx, borrowingID)
				if err != nil {
					return ruleError("deliver failed", err)
				}

				borrowing := toBorrowingOutput(result.Borrowing)

				return p.print(borrowing, func(w io.Writer) {
					_, _ = fmt.Fprintf(w, "borrowing %s returned at %s\n", borrowing.ID, formatTimePtr(borrowing.Returned))
				})
			})
		},
	}
}

// NewExtendCommand creates the extend command.
func NewExtendCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extend <borrowing-id>",
		Short: "Extend a borrowing",
		Long: `Extend a borrowing so it is due one queue expiry period from now.
Extending is refused while somebody is waiting for the item.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			borrowingID, err := parseID("borrowing id", args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app, p printer) error {
				result, err := a.session.Extend(ctx, borrowingID)
				if err != nil {
					return ruleError("extend failed", err)
				}

				borrowing := toBorrowingOutput(result.Borrowing)

				return p.print(borrowing, func(w io.Writer) {
					_, _ = fmt.Fprintf(w, "borrowing %s is now due %s\n", borrowing.ID, formatTime(borrowing.DueTime))
				})
			})
		},
	}
}

// withApp wires the app for a single command run and closes it afterwards.
func withApp(cmd *cobra.Command, opts *RootOptions, run func(ctx context.Context, a *app, p printer) error) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return run(ctx, a, printer{w: cmd.OutOrStdout(), asJSON: opts.JSON})
}

func parseID(what string, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, WrapExitError(ExitCommandError, "invalid "+what, err)
	}

	return id, nil
}
