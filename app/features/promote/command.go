package promote

import (
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

const (
	commandType = "Promote"
)

// Command represents the intent to hand a free copy of an item to the next requester in line.
type Command struct {
	ItemID uuid.UUID
	Now    time.Time
}

// CommandType returns the type identifier for this command, used for observability and routing.
func (c Command) CommandType() string {
	return commandType
}

// BuildCommand creates a new Command with the provided parameters.
func BuildCommand(itemID uuid.UUID, now time.Time) Command {
	return Command{
		ItemID: itemID,
		Now:    lending.ToTimestamp(now),
	}
}
