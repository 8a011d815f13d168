package shell

import "time"

// HandlerResult is what a lending command handler reports next to its domain result.
// The observable wrapper and the daemon read it, the handlers never log or measure themselves.
type HandlerResult struct {
	// Idempotent is set when the store already reflected the command, e.g. a queue entry that was promoted
	// or expired by an earlier pass.
	Idempotent bool

	// RetryAttempts counts every transaction attempt, so 1 means the first one went through.
	RetryAttempts int

	// TotalRetryDelay sums the backoff waits between attempts.
	TotalRetryDelay time.Duration

	// LastErrorType is one of the errorType* labels of the last attempt.
	LastErrorType string

	// RetriesExhausted is set when the last attempt still lost a lock race on the item.
	RetriesExhausted bool
}

// NewSuccessResult reports a command that changed the store.
func NewSuccessResult(retryMetrics RetryMetrics) HandlerResult {
	return retryMetrics.handlerResult()
}

// NewIdempotentResult reports a command that found nothing left to change.
func NewIdempotentResult(retryMetrics RetryMetrics) HandlerResult {
	result := retryMetrics.handlerResult()
	result.Idempotent = true

	return result
}

// NewErrorResult reports a rejected or failed command.
func NewErrorResult(retryMetrics RetryMetrics) HandlerResult {
	return retryMetrics.handlerResult()
}

func (m RetryMetrics) handlerResult() HandlerResult {
	return HandlerResult{
		RetryAttempts:    m.Attempts,
		TotalRetryDelay:  m.TotalDelay,
		LastErrorType:    m.LastErrorType,
		RetriesExhausted: m.RetriesExhausted,
	}
}
