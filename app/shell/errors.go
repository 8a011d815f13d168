package shell

import "errors"

var (
	// ErrUnknownChangeKind is returned when a decision contains a change the shell cannot persist.
	ErrUnknownChangeKind = errors.New("unknown change kind")
)
