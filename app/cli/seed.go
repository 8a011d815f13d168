package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/lending-daemon-go/app/features/borrow"
	"github.com/AntonStoeckl/lending-daemon-go/app/features/deliver"
	"github.com/AntonStoeckl/lending-daemon-go/app/features/promote"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// ErrStoreNotEmpty is returned when seeding a store that already holds items.
var ErrStoreNotEmpty = errors.New("seed needs a store without items")

// daysBeforeLastRun is how far the seeded watermark lies in the past.
const daysBeforeLastRun = 16

var demoItems = []struct {
	name      string
	catalogID string
	capacity  int
}{
	{"The Pragmatic Programmer", "978-0135957059", 1},
	{"Structure and Interpretation of Computer Programs", "978-0262510873", 1},
	{"Goedel, Escher, Bach", "978-0465026562", 1},
	{"The Go Programming Language", "978-0134190440", 1},
	{"Introduction to Algorithms", "978-0262046305", 1},
	{"Design Patterns", "978-0201633610", 1},
	{"Refactoring", "978-0134757599", 1},
	{"Domain-Driven Design", "978-0321125217", 1},
	{"Designing Data-Intensive Applications", "978-1449373320", 1},
	{"Carcassonne", "BOARDGAME-0001", 2},
}

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	RunPass bool
}

type seedOutput struct {
	Items        int         `json:"items"`
	Borrowings   int         `json:"borrowings"`
	Returns      int         `json:"returns"`
	QueueEntries int         `json:"queue_entries"`
	Promotions   int         `json:"promotions"`
	LastRunTime  time.Time   `json:"last_run_time"`
	Pass         *passOutput `json:"pass,omitempty"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill an empty store with demo items and a deadline daemon scenario",
		Long: `Fill an empty store with demo items and records that give the next daemon pass something
to do: the watermark lies 16 days back, one borrowing is due soon, one is overdue, one queue
waits behind a borrowing, two queues wait for copies returned yesterday and two queue positions
have lapsed.

With --run-pass a daemon pass runs right after seeding, which makes the scenario usable with the
memory adapter.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts.RootOptions, func(ctx context.Context, a *app, p printer) error {
				return runSeed(ctx, opts, a, p)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.RunPass, "run-pass", false, "run a daemon pass after seeding")

	return cmd
}

func runSeed(ctx context.Context, opts *SeedOptions, a *app, p printer) error {
	now := lending.ToTimestamp(opts.now())

	s := &scenario{a: a, policy: a.cfg.Lending.Policy()}
	if err := s.seed(ctx, now); err != nil {
		return WrapExitError(ExitCommandError, "seeding failed", err)
	}

	if opts.RunPass {
		scheduler, err := a.scheduler(opts.RootOptions)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create the daemon", err)
		}

		report, err := scheduler.RunPass(ctx, now)
		if err != nil {
			return WrapExitError(ExitFailure, "daemon pass after seeding failed", err)
		}

		pass := toPassOutput(report)
		s.out.Pass = &pass
	}

	return p.print(s.out, func(w io.Writer) {
		_, _ = fmt.Fprintf(w, "items:         %d\n", s.out.Items)
		_, _ = fmt.Fprintf(w, "borrowings:    %d (%d returned)\n", s.out.Borrowings, s.out.Returns)
		_, _ = fmt.Fprintf(w, "queue entries: %d (%d promoted)\n", s.out.QueueEntries, s.out.Promotions)
		_, _ = fmt.Fprintf(w, "last run:      %s\n", formatTime(s.out.LastRunTime))

		if s.out.Pass != nil {
			_, _ = fmt.Fprintln(w, "daemon pass:")
			printPassOutput(w, *s.out.Pass)
		}
	})
}

// scenario creates its records through the lending rules, each at the instant it would have happened.
type scenario struct {
	a      *app
	policy lending.Policy
	items  lending.Items
	out    seedOutput
}

func (s *scenario) seed(ctx context.Context, now time.Time) error {
	existing, err := s.a.store.Items(ctx)
	if err != nil {
		return err
	}

	if len(existing) > 0 {
		return fmt.Errorf("%w, found %d", ErrStoreNotEmpty, len(existing))
	}

	for _, demo := range demoItems {
		item, buildErr := lending.BuildItem(demo.name, demo.catalogID, demo.capacity)
		if buildErr != nil {
			return buildErr
		}

		if insertErr := s.a.store.InsertItem(ctx, item); insertErr != nil {
			return insertErr
		}

		s.items = append(s.items, item)
	}

	s.out.Items = len(s.items)

	lastRun := now.Add(-lending.Days(daysBeforeLastRun))
	if err = s.a.store.SeedWatermark(ctx, lastRun); err != nil {
		return err
	}

	s.out.LastRunTime = lastRun
	day := lending.Day
	loanTerm := s.policy.LoanTerm

	// still borrowed, not due for a while
	if _, err = s.borrow(ctx, 0, "test_borrower_still_borrowing", lastRun.Add(-day)); err != nil {
		return err
	}

	// due tomorrow
	if _, err = s.borrow(ctx, 1, "test_borrower_return_soon", now.Add(day-loanTerm)); err != nil {
		return err
	}

	// overdue since yesterday
	if _, err = s.borrow(ctx, 2, "test_borrower_overdue", now.Add(-day-loanTerm)); err != nil {
		return err
	}

	// queue waiting behind a borrowing that is due soon
	if _, err = s.borrow(ctx, 3, "test_borrower_return_soon", now.Add(2*day-loanTerm)); err != nil {
		return err
	}

	if _, err = s.borrow(ctx, 3, "test_queue_user_still_waiting", lastRun.Add(-day)); err != nil {
		return err
	}

	// three queues, the copies of two of them were returned yesterday
	for i := 0; i < 3; i++ {
		borrowingID, borrowErr := s.borrow(ctx, 4+i, fmt.Sprintf("test_borrower_returned_%d", i), lastRun.Add(-2*day))
		if borrowErr != nil {
			return borrowErr
		}

		if _, err = s.borrow(ctx, 4+i, fmt.Sprintf("test_queue_user_%d", i), lastRun.Add(-day)); err != nil {
			return err
		}

		if i != 2 {
			if err = s.deliver(ctx, borrowingID, now.Add(-day)); err != nil {
				return err
			}
		}
	}

	// queue positions that became available long ago, the second one after the last run
	if err = s.lapsedQueuePosition(ctx, 7, "test_queue_user_expired", lastRun, lastRun.Add(-2*day)); err != nil {
		return err
	}

	return s.lapsedQueuePosition(ctx, 8, "test_queue_user_expired_notified", lastRun, lastRun.Add(day))
}

func (s *scenario) lapsedQueuePosition(
	ctx context.Context,
	item int,
	requester string,
	lastRun time.Time,
	availableSince time.Time,
) error {

	borrowingID, err := s.borrow(ctx, item, "test_borrower_"+requester, lastRun.Add(-4*lending.Day))
	if err != nil {
		return err
	}

	if _, err = s.borrow(ctx, item, requester, lastRun.Add(-3*lending.Day)); err != nil {
		return err
	}

	if err = s.deliver(ctx, borrowingID, lastRun.Add(-2*lending.Day)); err != nil {
		return err
	}

	result, _, err := s.a.promoteHandler.Handle(ctx, promote.BuildCommand(s.items[item].ID, availableSince))
	if err != nil {
		return err
	}

	if result.Promoted != nil {
		s.out.Promotions++
	}

	return nil
}

// borrow returns the id of the created borrowing, or uuid.Nil when the requester was queued.
func (s *scenario) borrow(ctx context.Context, item int, requester string, at time.Time) (uuid.UUID, error) {
	result, _, err := s.a.borrowHandler.Handle(ctx, borrow.BuildCommand(s.items[item].ID, requester, at))
	if err != nil {
		return uuid.Nil, err
	}

	if result.Queued() {
		s.out.QueueEntries++
		return uuid.Nil, nil
	}

	s.out.Borrowings++

	return result.Borrowing.ID, nil
}

func (s *scenario) deliver(ctx context.Context, borrowingID uuid.UUID, at time.Time) error {
	if _, _, err := s.a.deliverHandler.Handle(ctx, deliver.BuildCommand(borrowingID, at)); err != nil {
		return err
	}

	s.out.Returns++

	return nil
}
