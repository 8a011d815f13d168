package deliver

import (
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

const (
	commandType = "Deliver"
)

// Command represents the return of a borrowed copy.
type Command struct {
	BorrowingID uuid.UUID
	Now         time.Time
}

// CommandType returns the type identifier for this command, used for observability and routing.
func (c Command) CommandType() string {
	return commandType
}

// BuildCommand creates a new Command with the provided parameters.
func BuildCommand(borrowingID uuid.UUID, now time.Time) Command {
	return Command{
		BorrowingID: borrowingID,
		Now:         lending.ToTimestamp(now),
	}
}
