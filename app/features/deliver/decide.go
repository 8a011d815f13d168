package deliver

import (
	"fmt"

	"github.com/AntonStoeckl/lending-daemon-go/app/core"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// Decide marks the borrowing as returned at command.Now.
// A borrowing that was already returned is rejected with lending.ErrAlreadyReturned.
func Decide(borrowing lending.Borrowing, command Command) core.DecisionResult {
	if !borrowing.IsActive() {
		return core.ErrorDecision(fmt.Errorf(
			"%w: borrowing %s was returned at %s",
			lending.ErrAlreadyReturned, borrowing.ID, borrowing.ReturnedTime.Format("2006-01-02 15:04:05"),
		))
	}

	borrowing.ReturnedTime = lending.TimePtr(command.Now)

	return core.SuccessDecision(core.BorrowingReturned(borrowing))
}
