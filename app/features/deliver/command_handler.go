package deliver

import (
	"context"

	"github.com/AntonStoeckl/lending-daemon-go/app/core"
	"github.com/AntonStoeckl/lending-daemon-go/app/shell"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// Result holds the returned borrowing.
type Result struct {
	Borrowing lending.Borrowing
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

	retryMetrics, err := shell.RetryWithExponentialBackoff(ctx, func(retryCtx context.Context) error {
		var execErr error
		result, execErr = h.executeCommand(retryCtx, command)

		return execErr
	}, h.retryOptions...)

	if err != nil {
		return Result{}, shell.NewErrorResult(retryMetrics), err
	}

	return result, shell.NewSuccessResult(retryMetrics), nil
}

func (h CommandHandler) executeCommand(ctx context.Context, command Command) (Result, error) {
	var decision core.DecisionResult

	err := h.store.InTx(ctx, func(ctx context.Context, tx lending.Tx) error {
		borrowing, loadErr := lockedBorrowing(ctx, tx, command)
		if loadErr != nil {
			return loadErr
		}

		decision = Decide(borrowing, command)
		if decisionErr := decision.HasError(); decisionErr != nil {
			return decisionErr
		}

		return shell.ApplyChanges(ctx, tx, decision.Changes)
	})
	if err != nil {
		return Result{}, err
	}

	change, _ := decision.Changes.First(core.BorrowingReturnedKind)

	return Result{Borrowing: change.Borrowing}, nil
}

// lockedBorrowing locks the borrowing's item and reads the borrowing again under that lock.
func lockedBorrowing(ctx context.Context, tx lending.Tx, command Command) (lending.Borrowing, error) {
	borrowing, err := tx.Borrowing(ctx, command.BorrowingID)
	if err != nil {
		return lending.Borrowing{}, err
	}

	if _, err = tx.LockItem(ctx, borrowing.ItemID); err != nil {
		return lending.Borrowing{}, err
	}

	return tx.Borrowing(ctx, command.BorrowingID)
}
