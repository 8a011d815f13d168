package expirequeueposition

import (
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

const (
	commandType = "ExpireQueuePosition"
)

// Command represents the lapse of a promoted requester's grace period.
type Command struct {
	QueueEntryID uuid.UUID
	Now          time.Time
}

// CommandType returns the type identifier for this command, used for observability and routing.
func (c Command) CommandType() string {
	return commandType
}

// BuildCommand creates a new Command with the provided parameters.
func BuildCommand(queueEntryID uuid.UUID, now time.Time) Command {
	return Command{
		QueueEntryID: queueEntryID,
		Now:          lending.ToTimestamp(now),
	}
}
