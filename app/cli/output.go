package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/lending-daemon-go/app/shell"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // A rule rejected the request or a daemon pass stayed incomplete
	ExitCommandError = 2 // Configuration, store or notifier could not be used
)

const timeLayout = "2006-01-02 15:04"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ExitError carries the exit code a failed command ends the process with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitCommandError if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return ExitCommandError
}

// ruleError classifies an error returned by a lending rule.
// Rejections are the user's business, everything else is an operational failure.
func ruleError(message string, err error) error {
	if shell.IsRejection(err) || errors.Is(err, lending.ErrInvalidItem) {
		return WrapExitError(ExitFailure, message, err)
	}

	return WrapExitError(ExitCommandError, message, err)
}

// printer writes command results either as indented JSON or as plain text lines.
type printer struct {
	w      io.Writer
	asJSON bool
}

func (p printer) print(v any, text func(w io.Writer)) error {
	if !p.asJSON {
		text(p.w)
		return nil
	}

	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(p.w, string(out))

	return err
}

func formatTime(t time.Time) string {
	return t.Local().Format(timeLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}

	return formatTime(*t)
}
