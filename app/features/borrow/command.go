package borrow

import (
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

const (
	commandType = "Borrow"
)

// Command represents the intent of a requester to borrow a copy of an item.
// RecordID becomes the id of the created borrowing or queue entry, so a retried command creates the same record.
type Command struct {
	ItemID      uuid.UUID
	RequesterID string
	RecordID    uuid.UUID
	Now         time.Time
}

// CommandType returns the type identifier for this command, used for observability and routing.
func (c Command) CommandType() string {
	return commandType
}

// BuildCommand creates a new Command with a fresh record id.
func BuildCommand(itemID uuid.UUID, requesterID string, now time.Time) Command {
	return Command{
		ItemID:      itemID,
		RequesterID: requesterID,
		RecordID:    uuid.New(),
		Now:         lending.ToTimestamp(now),
	}
}
