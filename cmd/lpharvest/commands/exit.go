package commands

import (
	"context"

	"github.com/teranos/lpharvest/errors"
)

// Process exit codes
const (
	ExitCodeOK        = 0
	ExitCodeFailure   = 1 // harvest failed, invalid query, bad config or output error
	ExitCodePartial   = 2 // some repositories failed and --strict was given
	ExitCodeCancelled = 3
)

// ExitError carries a specific exit code out of a command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps a command error to the process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitCodeOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, context.Canceled) {
		return ExitCodeCancelled
	}
	return ExitCodeFailure
}
