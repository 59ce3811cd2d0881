// Package errors provides error handling for lpharvest.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
//
// On top of the re-exports it defines the retry classification shared by the
// Logpoint client and the pacer, so neither has to import the other.
//
// Usage:
//
//	if err := client.Search(ctx, req); err != nil {
//	    return errors.Wrapf(err, "search repo %s", req.Repository)
//	}
//
//	return errors.WithHint(err, "check logpoint.secret_key")
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	"time"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint        = crdb.WithHint
	WithHintf       = crdb.WithHintf
	WithDetail      = crdb.WithDetail
	WithDetailf     = crdb.WithDetailf
	WithSafeDetails = crdb.WithSafeDetails
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Sentinels shared across packages. Wrap them to add context; test with Is.
var (
	// ErrInvalidRequest indicates a caller contract violation (bad parameters)
	ErrInvalidRequest = New("invalid request")

	// ErrRetriesExhausted indicates a retryable failure persisted past the retry bound
	ErrRetriesExhausted = New("retries exhausted")
)

// Retryable is implemented by errors that know whether repeating the same
// call may succeed.
type Retryable interface {
	Retryable() bool
}

// Delayed is implemented by errors that carry a server-suggested retry delay.
type Delayed interface {
	RetryAfter() time.Duration
}

// IsRetryable reports whether any error in the chain declares itself retryable.
// Errors that do not implement Retryable are not retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r Retryable
	if As(err, &r) {
		return r.Retryable()
	}
	return false
}

// RetryAfter returns the server-suggested delay carried by err, or 0.
func RetryAfter(err error) time.Duration {
	var d Delayed
	if err != nil && As(err, &d) {
		return d.RetryAfter()
	}
	return 0
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidRequest)
}
