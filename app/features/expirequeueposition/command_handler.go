package expirequeueposition

import (
	"context"

	"github.com/AntonStoeckl/lending-daemon-go/app/core"
	"github.com/AntonStoeckl/lending-daemon-go/app/shell"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// Result holds the expired entry, the entry promoted in its place and the item's open queue length
// after the command.
type Result struct {
	Expired         lending.QueueEntry
	Promoted        *lending.QueueEntry
	OpenQueueLength int
}

// CommandHandler orchestrates the command processing workflow: Lock -> Load -> Decide -> Apply, with retry.
type CommandHandler struct {
	store        lending.Transactor
	retryOptions []shell.RetryOption
}

var _ shell.CommandHandler[Command, Result] = CommandHandler{}

// Option configures a CommandHandler.
type Option func(*CommandHandler)

// WithRetryOptions sets a custom retry configuration for the handler.
func WithRetryOptions(opts ...shell.RetryOption) Option {
	return func(h *CommandHandler) {
		h.retryOptions = opts
	}
}

// NewCommandHandler creates a new CommandHandler with optional configuration.
func NewCommandHandler(store lending.Transactor, opts ...Option) CommandHandler {
	handler := CommandHandler{
		store: store,
	}

	for _, opt := range opts {
		opt(&handler)
	}

	return handler
}

// Handle executes the command with retry on concurrency conflicts.
func (h CommandHandler) Handle(ctx context.Context, command Command) (Result, shell.HandlerResult, error) {
	var result Result
	var isIdempotent bool

	retryMetrics, err := shell.RetryWithExponentialBackoff(ctx, func(retryCtx context.Context) error {
		var execErr error
		result, isIdempotent, execErr = h.executeCommand(retryCtx, command)

		return execErr
	}, h.retryOptions...)

	if err != nil {
		return Result{}, shell.NewErrorResult(retryMetrics), err
	}

	if isIdempotent {
		return result, shell.NewIdempotentResult(retryMetrics), nil
	}

	return result, shell.NewSuccessResult(retryMetrics), nil
}

func (h CommandHandler) executeCommand(ctx context.Context, command Command) (Result, bool, error) {
	var decision core.DecisionResult
	var entry lending.QueueEntry
	var state core.ItemState

	err := h.store.InTx(ctx, func(ctx context.Context, tx lending.Tx) error {
		var err error

		if entry, err = tx.QueueEntry(ctx, command.QueueEntryID); err != nil {
			return err
		}

		if state, err = shell.LoadItemState(ctx, tx, entry.ItemID); err != nil {
			return err
		}

		// re-read under the item lock
		if entry, err = tx.QueueEntry(ctx, command.QueueEntryID); err != nil {
			return err
		}

		decision = Decide(state, entry, command)
		if decisionErr := decision.HasError(); decisionErr != nil {
			return decisionErr
		}

		return shell.ApplyChanges(ctx, tx, decision.Changes)
	})
	if err != nil {
		return Result{}, false, err
	}

	if decision.IsIdempotent() {
		return Result{Expired: entry, OpenQueueLength: len(state.OpenQueue)}, true, nil
	}

	expired, _ := decision.Changes.First(core.QueuePositionExpiredKind)
	result := Result{
		Expired:         expired.QueueEntry,
		OpenQueueLength: len(state.WithoutQueueEntry(entry.ID).OpenQueue),
	}

	if promoted, ok := decision.Changes.First(core.QueuePositionAvailableKind); ok {
		result.Promoted = &promoted.QueueEntry
	}

	return result, false, nil
}
