package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// ItemsOptions holds flags for the items subcommands.
type ItemsOptions struct {
	*RootOptions
	CatalogID string
	Capacity  int
}

type itemOutput struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CatalogID string    `json:"catalog_id,omitempty"`
	Capacity  int       `json:"capacity"`
}

type overviewOutput struct {
	Item             itemOutput         `json:"item"`
	FreeCopies       int                `json:"free_copies"`
	ActiveBorrowings []borrowingOutput  `json:"active_borrowings"`
	OpenQueue        []queueEntryOutput `json:"open_queue"`
}

func toItemOutput(item lending.Item) itemOutput {
	return itemOutput{ID: item.ID, Name: item.Name, CatalogID: item.CatalogID, Capacity: item.Capacity}
}

// NewItemsCommand creates the items command group.
func NewItemsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ItemsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "items",
		Short: "Manage catalog items",
	}

	cmd.AddCommand(newItemsAddCommand(opts))
	cmd.AddCommand(newItemsListCommand(opts))
	cmd.AddCommand(newItemsShowCommand(opts))
	cmd.AddCommand(newItemsSetCapacityCommand(opts))

	return cmd
}

func newItemsAddCommand(opts *ItemsOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "add <name>",
		Short:         "Add an item to the catalog",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := lending.BuildItem(args[0], opts.CatalogID, opts.Capacity)
			if err != nil {
				return WrapExitError(ExitFailure, "invalid item", err)
			}

			return withApp(cmd, opts.RootOptions, func(ctx context.Context, a *app, p printer) error {
				if err := a.store.InsertItem(ctx, item); err != nil {
					return WrapExitError(ExitCommandError, "failed to add item", err)
				}

				return p.print(toItemOutput(item), func(w io.Writer) {
					_, _ = fmt.Fprintf(w, "added %q with %d copies as %s\n", item.Name, item.Capacity, item.ID)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.CatalogID, "catalog-id", "", "catalog id, e.g. an ISBN")
	cmd.Flags().IntVar(&opts.Capacity, "capacity", 1, "number of physical copies")

	return cmd
}

func newItemsListCommand(opts *ItemsOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List all items",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts.RootOptions, func(ctx context.Context, a *app, p printer) error {
				items, err := a.store.Items(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list items", err)
				}

				result := make([]itemOutput, 0, len(items))
				for _, item := range items {
					result = append(result, toItemOutput(item))
				}

				return p.print(result, func(w io.Writer) {
					for _, item := range result {
						_, _ = fmt.Fprintf(w, "%s  %-40s %-16s %d\n", item.ID, item.Name, item.CatalogID, item.Capacity)
					}
				})
			})
		},
	}
}

func newItemsShowCommand(opts *ItemsOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <item-id>",
		Short:         "Show an item with its active borrowings and its queue",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseID("item id", args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, opts.RootOptions, func(ctx context.Context, a *app, p printer) error {
				overview, err := a.session.Overview(ctx, itemID)
				if err != nil {
					return ruleError("failed to show item", err)
				}

				result := overviewOutput{
					Item:             toItemOutput(overview.Item),
					FreeCopies:       overview.FreeCopies,
					ActiveBorrowings: make([]borrowingOutput, 0, len(overview.ActiveBorrowings)),
					OpenQueue:        make([]queueEntryOutput, 0, len(overview.OpenQueue)),
				}

				for _, borrowing := range overview.ActiveBorrowings {
					result.ActiveBorrowings = append(result.ActiveBorrowings, toBorrowingOutput(borrowing))
				}

				for _, entry := range overview.OpenQueue {
					result.OpenQueue = append(result.OpenQueue, toQueueEntryOutput(entry))
				}

				return p.print(result, func(w io.Writer) {
					printOverview(w, result)
				})
			})
		},
	}
}

func printOverview(w io.Writer, result overviewOutput) {
	_, _ = fmt.Fprintf(w, "%s (%s)\n", result.Item.Name, result.Item.ID)
	_, _ = fmt.Fprintf(w, "copies: %d, free: %d\n", result.Item.Capacity, result.FreeCopies)

	_, _ = fmt.Fprintln(w, "borrowed:")
	for _, b := range result.ActiveBorrowings {
		_, _ = fmt.Fprintf(w, "  %s  %-20s due %s\n", b.ID, b.BorrowerID, formatTime(b.DueTime))
	}

	_, _ = fmt.Fprintln(w, "queue:")
	for i, e := range result.OpenQueue {
		_, _ = fmt.Fprintf(w, "  %d. %s  %-20s %-9s since %s\n", i+1, e.ID, e.RequesterID, e.State, formatTime(e.EnteredTime))
	}
}

func newItemsSetCapacityCommand(opts *ItemsOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set-capacity <item-id> <capacity>",
		Short:         "Change the number of copies of an item",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseID("item id", args[0])
			if err != nil {
				return err
			}

			capacity, err := strconv.Atoi(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid capacity", err)
			}

			return withApp(cmd, opts.RootOptions, func(ctx context.Context, a *app, p printer) error {
				if err := a.store.UpdateItemCapacity(ctx, itemID, capacity); err != nil {
					return ruleError("failed to change capacity", err)
				}

				item, err := a.store.Item(ctx, itemID)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read item", err)
				}

				return p.print(toItemOutput(item), func(w io.Writer) {
					_, _ = fmt.Fprintf(w, "%q now has %d copies\n", item.Name, item.Capacity)
				})
			})
		},
	}
}
