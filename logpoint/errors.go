package logpoint

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/lpharvest/errors"
)

// AuthError means Logpoint rejected the credentials. Not retryable.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("logpoint: authentication rejected%s: %s", statusSuffix(e.StatusCode), e.Message)
}

func (e *AuthError) Retryable() bool { return false }

// ThrottledError means Logpoint asked the caller to slow down. Retryable.
type ThrottledError struct {
	StatusCode int
	Message    string
	Delay      time.Duration // server-suggested wait, 0 when not supplied
}

func (e *ThrottledError) Error() string {
	msg := fmt.Sprintf("logpoint: throttled%s: %s", statusSuffix(e.StatusCode), e.Message)
	if e.Delay > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.Delay)
	}
	return msg
}

func (e *ThrottledError) Retryable() bool { return true }

func (e *ThrottledError) RetryAfter() time.Duration { return e.Delay }

// TransientError covers network failures, 5xx responses and unreadable bodies. Retryable.
type TransientError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("logpoint: transient failure%s: %s: %v", statusSuffix(e.StatusCode), e.Message, e.Err)
	}
	return fmt.Sprintf("logpoint: transient failure%s: %s", statusSuffix(e.StatusCode), e.Message)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Retryable() bool { return true }

// InvalidQueryError means the query or its parameters were rejected. Not retryable,
// and the same for every repository.
type InvalidQueryError struct {
	StatusCode int
	Message    string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("logpoint: invalid query%s: %s", statusSuffix(e.StatusCode), e.Message)
}

func (e *InvalidQueryError) Retryable() bool { return false }

// ServiceError is a failure Logpoint reported that is neither about the query
// nor retryable, such as an expired search id or an internal error. It ends
// only the repository it happened on.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("logpoint: search failed%s: %s", statusSuffix(e.StatusCode), e.Message)
}

func (e *ServiceError) Retryable() bool { return false }

// IsServiceError reports whether err is or wraps a ServiceError
func IsServiceError(err error) bool {
	var target *ServiceError
	return errors.As(err, &target)
}

// IsAuthError reports whether err is or wraps an AuthError
func IsAuthError(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// IsInvalidQueryError reports whether err is or wraps an InvalidQueryError
func IsInvalidQueryError(err error) bool {
	var target *InvalidQueryError
	return errors.As(err, &target)
}

// IsThrottledError reports whether err is or wraps a ThrottledError
func IsThrottledError(err error) bool {
	var target *ThrottledError
	return errors.As(err, &target)
}

// IsTransientError reports whether err is or wraps a TransientError
func IsTransientError(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}

func statusSuffix(code int) string {
	if code == 0 {
		return ""
	}
	return fmt.Sprintf(" (HTTP %d)", code)
}

// classifyStatus maps a non-2xx HTTP response onto the error taxonomy
func classifyStatus(code int, header http.Header, body string, now time.Time) error {
	msg := strings.TrimSpace(body)
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	if msg == "" {
		msg = http.StatusText(code)
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errors.WithHint(&AuthError{StatusCode: code, Message: msg},
			"check logpoint.account and logpoint.secret_key")
	case code == http.StatusTooManyRequests:
		return &ThrottledError{StatusCode: code, Message: msg, Delay: parseRetryAfter(header.Get("Retry-After"), now)}
	case code == http.StatusServiceUnavailable && header.Get("Retry-After") != "":
		return &ThrottledError{StatusCode: code, Message: msg, Delay: parseRetryAfter(header.Get("Retry-After"), now)}
	case code >= 500:
		return &TransientError{StatusCode: code, Message: msg}
	case code == http.StatusRequestTimeout:
		return &TransientError{StatusCode: code, Message: msg}
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return &InvalidQueryError{StatusCode: code, Message: msg}
	default:
		return &ServiceError{StatusCode: code, Message: msg}
	}
}

// classifyMessage maps a success:false body onto the error taxonomy. Logpoint
// reports most failures this way with HTTP 200.
func classifyMessage(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, "authenticat", "unauthori", "credential", "secret key", "secret_key", "login", "permission denied", "access denied"):
		return errors.WithHint(&AuthError{Message: msg}, "check logpoint.account and logpoint.secret_key")
	case containsAny(lower, "rate limit", "too many", "overload", "throttl"):
		return &ThrottledError{Message: msg}
	case containsAny(lower, "busy", "try again", "timed out", "timeout", "unavailable"):
		return &TransientError{Message: msg}
	case containsAny(lower, "search id", "search_id"):
		return &ServiceError{Message: msg}
	case containsAny(lower, "syntax", "query", "invalid", "unknown field", "parse", "malformed"):
		return &InvalidQueryError{Message: msg}
	default:
		if msg == "" {
			msg = "request rejected without a message"
		}
		return &ServiceError{Message: msg}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
