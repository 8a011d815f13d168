package observable

import (
	"context"
	"time"

	"github.com/AntonStoeckl/lending-daemon-go/app/shell"
)

// CommandWrapper instruments any lending rule handler with metrics, tracing and logging.
// It delegates the business logic to the wrapped handler and translates its HandlerResult into metrics.
type CommandWrapper[C shell.Command, R any] struct {
	coreHandler      shell.CommandHandler[C, R]
	commandType      string
	metricsCollector shell.MetricsCollector
	tracingCollector shell.TracingCollector
	contextualLogger shell.ContextualLogger
	logger           shell.Logger
}

var _ shell.CommandHandler[shell.Command, any] = (*CommandWrapper[shell.Command, any])(nil)

// NewCommandWrapper creates a new observable wrapper around the core command handler.
func NewCommandWrapper[C shell.Command, R any](
	coreHandler shell.CommandHandler[C, R],
	opts ...CommandOption[C, R],
) (*CommandWrapper[C, R], error) {

	var zeroCommand C

	wrapper := &CommandWrapper[C, R]{
		coreHandler: coreHandler,
	}

	if any(zeroCommand) != nil {
		wrapper.commandType = zeroCommand.CommandType()
	}

	for _, opt := range opts {
		if err := opt(wrapper); err != nil {
			return nil, err
		}
	}

	return wrapper, nil
}

// Handle runs the wrapped handler inside a command span and records its outcome.
func (w *CommandWrapper[C, R]) Handle(ctx context.Context, command C) (R, shell.HandlerResult, error) {
	commandStart := time.Now()
	commandType := w.commandType

	if commandType == "" {
		commandType = command.CommandType()
	}

	ctx, span := shell.StartCommandSpan(ctx, w.tracingCollector, commandType)
	shell.LogCommandStart(ctx, w.logger, w.contextualLogger, commandType)

	result, handlerResult, err := w.coreHandler.Handle(ctx, command)

	w.recordRetryMetrics(ctx, commandType, handlerResult)

	if err != nil {
		w.recordCommandError(ctx, commandType, err, time.Since(commandStart), span)
		return result, handlerResult, err
	}

	if handlerResult.Idempotent {
		w.recordCommandSuccess(ctx, commandType, shell.StatusIdempotent, time.Since(commandStart), span)
	} else {
		w.recordCommandSuccess(ctx, commandType, shell.StatusSuccess, time.Since(commandStart), span)
	}

	return result, handlerResult, nil
}

// CommandOption defines a functional option for configuring CommandWrapper.
type CommandOption[C shell.Command, R any] func(*CommandWrapper[C, R]) error

// WithCommandMetrics sets the metrics collector for the CommandWrapper.
func WithCommandMetrics[C shell.Command, R any](collector shell.MetricsCollector) CommandOption[C, R] {
	return func(w *CommandWrapper[C, R]) error {
		w.metricsCollector = collector
		return nil
	}
}

// WithCommandTracing sets the tracing collector for the CommandWrapper.
func WithCommandTracing[C shell.Command, R any](collector shell.TracingCollector) CommandOption[C, R] {
	return func(w *CommandWrapper[C, R]) error {
		w.tracingCollector = collector
		return nil
	}
}

// WithCommandContextualLogging sets the contextual logger for the CommandWrapper.
func WithCommandContextualLogging[C shell.Command, R any](logger shell.ContextualLogger) CommandOption[C, R] {
	return func(w *CommandWrapper[C, R]) error {
		w.contextualLogger = logger
		return nil
	}
}

// WithCommandLogging sets the basic logger for the CommandWrapper.
func WithCommandLogging[C shell.Command, R any](logger shell.Logger) CommandOption[C, R] {
	return func(w *CommandWrapper[C, R]) error {
		w.logger = logger
		return nil
	}
}

/*** Observability helper methods ***/

func (w *CommandWrapper[C, R]) recordCommandSuccess(
	ctx context.Context,
	commandType string,
	businessOutcome string,
	duration time.Duration,
	span shell.SpanContext,
) {

	shell.RecordCommandMetrics(ctx, w.metricsCollector, commandType, businessOutcome, duration)
	shell.FinishCommandSpan(w.tracingCollector, span, businessOutcome, duration, nil)
	shell.LogCommandSuccess(ctx, w.logger, w.contextualLogger, commandType, businessOutcome, duration)
}

// recordCommandError records failed command execution. Rejections are logged at info level.
func (w *CommandWrapper[C, R]) recordCommandError(
	ctx context.Context,
	commandType string,
	err error,
	duration time.Duration,
	span shell.SpanContext,
) {

	status := shell.ClassifyCommandError(err)

	shell.RecordCommandMetrics(ctx, w.metricsCollector, commandType, status, duration)
	shell.FinishCommandSpan(w.tracingCollector, span, status, duration, err)

	if status == shell.StatusRejected {
		shell.LogCommandRejected(ctx, w.logger, w.contextualLogger, commandType, err)
		return
	}

	shell.LogCommandError(ctx, w.logger, w.contextualLogger, commandType, err)
}

// recordRetryMetrics records retry execution metadata from the handler result.
func (w *CommandWrapper[C, R]) recordRetryMetrics(ctx context.Context, commandType string, result shell.HandlerResult) {
	if w.metricsCollector == nil {
		return
	}

	if result.RetryAttempts > 1 {
		retryLabels := shell.BuildRetryLabels(commandType, result.RetryAttempts-1, result.LastErrorType)
		shell.IncrementCounter(ctx, w.metricsCollector, shell.CommandHandlerRetriesMetric, retryLabels)

		delayLabels := map[string]string{shell.LogAttrCommandType: commandType}
		if contextualCollector, ok := w.metricsCollector.(shell.ContextualMetricsCollector); ok {
			contextualCollector.RecordDurationContext(ctx, shell.CommandHandlerRetryDelayMetric, result.TotalRetryDelay, delayLabels)
		} else {
			w.metricsCollector.RecordDuration(shell.CommandHandlerRetryDelayMetric, result.TotalRetryDelay, delayLabels)
		}
	}

	if result.RetriesExhausted {
		shell.IncrementCounter(
			ctx,
			w.metricsCollector,
			shell.CommandHandlerMaxRetriesReachedMetric,
			map[string]string{shell.LogAttrCommandType: commandType},
		)
	}
}
