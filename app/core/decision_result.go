package core

// DecisionResult represents the outcome of a lending rule.
//
// IMPORTANT: DecisionResult should only be constructed using the provided factory methods:
// IdempotentDecision(), SuccessDecision(changes...), or ErrorDecision(err).
type DecisionResult struct {
	Outcome string  // "idempotent", "success", or "error"
	Changes Changes // empty for idempotent and error decisions
	Err     error
}

const (
	idempotentOutcome = "idempotent"
	successOutcome    = "success"
	errorOutcome      = "error"
)

// IdempotentDecision creates a DecisionResult indicating no state change is needed.
func IdempotentDecision() DecisionResult {
	return DecisionResult{
		Outcome: idempotentOutcome,
	}
}

// SuccessDecision creates a DecisionResult with the changes to persist.
func SuccessDecision(changes ...Change) DecisionResult {
	return DecisionResult{
		Outcome: successOutcome,
		Changes: changes,
	}
}

// ErrorDecision creates a DecisionResult for a rejected command. Nothing is persisted.
func ErrorDecision(err error) DecisionResult {
	return DecisionResult{
		Outcome: errorOutcome,
		Err:     err,
	}
}

// HasChangesToApply returns true if the decision changes the store.
func (r DecisionResult) HasChangesToApply() bool {
	return r.Outcome == successOutcome && len(r.Changes) > 0
}

// HasError returns the error if there is one, otherwise nil.
func (r DecisionResult) HasError() error {
	if r.Outcome == errorOutcome {
		return r.Err
	}

	return nil
}

// IsIdempotent reports whether the command found the state it asked for already in place.
func (r DecisionResult) IsIdempotent() bool {
	return r.Outcome == idempotentOutcome
}
