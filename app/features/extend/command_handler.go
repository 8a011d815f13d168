package extend

import (
	"context"

	"github.com/AntonStoeckl/lending-daemon-go/app/core"
	"github.com/AntonStoeckl/lending-daemon-go/app/shell"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// Result holds the extended borrowing.
type Result struct {
	Borrowing lending.Borrowing
}

// CommandHandler orchestrates the command processing workflow: Lock -> Load -> Decide -> Apply, with retry.
type CommandHandler struct {
	store        lending.Transactor
	policy       lending.Policy
	retryOptions []shell.RetryOption
}

var _ shell.CommandHandler[Command, Result] = CommandHandler{}

// Option configures a CommandHandler.
type Option func(*CommandHandler)

// WithPolicy sets the lending policy. The default is lending.DefaultPolicy().
func WithPolicy(policy lending.Policy) Option {
	return func(h *CommandHandler) {
		h.policy = policy
	}
}

// WithRetryOptions sets a custom retry configuration for the handler.
func WithRetryOptions(opts ...shell.RetryOption) Option {
	return func(h *CommandHandler) {
		h.retryOptions = opts
	}
}

// NewCommandHandler creates a new CommandHandler with optional configuration.
func NewCommandHandler(store lending.Transactor, opts ...Option) CommandHandler {
	handler := CommandHandler{
		store:  store,
		policy: lending.DefaultPolicy(),
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
		borrowing, err := tx.Borrowing(ctx, command.BorrowingID)
		if err != nil {
			return err
		}

		state, err := shell.LoadItemState(ctx, tx, borrowing.ItemID)
		if err != nil {
			return err
		}

		// re-read under the item lock
		if borrowing, err = tx.Borrowing(ctx, command.BorrowingID); err != nil {
			return err
		}

		decision = Decide(state, borrowing, command, h.policy)
		if decisionErr := decision.HasError(); decisionErr != nil {
			return decisionErr
		}

		return shell.ApplyChanges(ctx, tx, decision.Changes)
	})
	if err != nil {
		return Result{}, err
	}

	change, _ := decision.Changes.First(core.BorrowingExtendedKind)

	return Result{Borrowing: change.Borrowing}, nil
}
