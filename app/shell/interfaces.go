package shell

import (
	"context"
)

// Command is implemented by every command a lending rule handles.
// The CommandType method labels logs, metrics and spans.
type Command interface {
	CommandType() string
}

// CommandHandler runs one lending rule. R is the rule specific result, HandlerResult the execution metadata.
type CommandHandler[C Command, R any] interface {
	Handle(ctx context.Context, command C) (R, HandlerResult, error)
}
