package promote

import (
	"context"

	"github.com/AntonStoeckl/lending-daemon-go/app/core"
	"github.com/AntonStoeckl/lending-daemon-go/app/shell"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// Result holds the promoted entry, or nil when nobody was promoted.
type Result struct {
	Promoted *lending.QueueEntry
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
// An idempotent HandlerResult means nobody was promoted.
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

	err := h.store.InTx(ctx, func(ctx context.Context, tx lending.Tx) error {
		state, loadErr := shell.LoadItemState(ctx, tx, command.ItemID)
		if loadErr != nil {
			return loadErr
		}

		decision = Decide(state, command)
		if decisionErr := decision.HasError(); decisionErr != nil {
			return decisionErr
		}

		return shell.ApplyChanges(ctx, tx, decision.Changes)
	})
	if err != nil {
		return Result{}, false, err
	}

	if change, ok := decision.Changes.First(core.QueuePositionAvailableKind); ok {
		return Result{Promoted: &change.QueueEntry}, false, nil
	}

	return Result{}, decision.IsIdempotent(), nil
}
