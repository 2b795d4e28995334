// Package apperr defines the application error taxonomy. Errors carry an
// i18n key instead of a literal user message; the layer that talks to the
// user resolves it in the user's language.
package apperr

import "fmt"

// Severity ranks an error for alerting purposes.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error is the application error type. UserKey names an i18n entry shown to
// the end user; Message is the operator-facing description.
type Error struct {
	Code      string
	Message   string
	UserKey   string
	Severity  Severity
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Validation flags bad user input. Never reported to Sentry.
func Validation(userKey, msg string) *Error {
	return &Error{
		Code:     "E100",
		Message:  msg,
		UserKey:  userKey,
		Severity: SeverityLow,
	}
}

// Database wraps a storage failure.
func Database(cause error) *Error {
	var underlying string
	if cause != nil {
		underlying = cause.Error()
	}

	return &Error{
		Code:      "E200",
		Message:   fmt.Sprintf("database error: %s", underlying),
		UserKey:   "errors.temporary",
		Severity:  SeverityHigh,
		Retryable: true,
		cause:     cause,
	}
}

// External wraps a failure of an upstream service (SMS gateway, mail relay).
func External(service string, cause error) *Error {
	return &Error{
		Code:      "E300",
		Message:   fmt.Sprintf("external service error: %s", service),
		UserKey:   "errors.service_unavailable",
		Severity:  SeverityMedium,
		Retryable: true,
		cause:     cause,
	}
}

// State flags an operation that is invalid in the current conversation or
// entity state, e.g. accepting a bid on an already matched request.
func State(userKey, msg string) *Error {
	return &Error{
		Code:     "E400",
		Message:  msg,
		UserKey:  userKey,
		Severity: SeverityMedium,
	}
}

// RateLimited flags a request dropped by the anti-spam guard.
func RateLimited(msg string) *Error {
	return &Error{
		Code:     "E500",
		Message:  msg,
		UserKey:  "errors.too_many_requests",
		Severity: SeverityLow,
	}
}
