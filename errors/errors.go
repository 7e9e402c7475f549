package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a terminal error for the HTTP boundary and the audit trail.
type Kind string

const (
	// KindUnauthenticated indicates the caller identity is missing or invalid.
	KindUnauthenticated Kind = "unauthenticated"

	// KindForbidden indicates the caller lacks permission on the referenced case.
	KindForbidden Kind = "forbidden"

	// KindRateLimited indicates the caller exceeded the rolling-window cap.
	KindRateLimited Kind = "rate_limited"

	// KindCreditsExhausted indicates the caller's quota is spent for the period.
	KindCreditsExhausted Kind = "credits_exhausted"

	// KindProviderTransient indicates a timeout/5xx/capacity failure from a
	// model provider. Recovered internally via fallback; only surfaced when
	// every configured provider is exhausted.
	KindProviderTransient Kind = "provider_transient"

	// KindValidation indicates malformed input: bad session id, missing
	// required field, message schema violation.
	KindValidation Kind = "validation"

	// KindStateConflict indicates an action invalid for the session's current
	// step, or a lost optimistic-concurrency race on session state.
	KindStateConflict Kind = "state_conflict"

	// KindPersistence indicates a store write failed after a model step
	// succeeded; the generated content may already have been shown to the
	// caller even though it was not saved.
	KindPersistence Kind = "persistence"

	// KindInternal covers everything else.
	KindInternal Kind = "internal"
)

// Error is the structured terminal error returned to the HTTP boundary.
// Terminal errors always carry a kind and a human-readable message, never a
// raw stack trace.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int // seconds; only meaningful for KindRateLimited
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a structured error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a structured error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsTransient reports whether the error is a recoverable provider failure
// eligible for fallback to the next configured provider.
func IsTransient(err error) bool {
	return KindOf(err) == KindProviderTransient
}

// RetryAfterSeconds returns the retry hint carried by a rate-limit error.
func RetryAfterSeconds(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// HTTPStatus maps an error kind to the status the HTTP boundary reports.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindCreditsExhausted:
		return http.StatusPaymentRequired
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindStateConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Sentinel errors for common store conditions.
var (
	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates that a resource already exists.
	ErrAlreadyExists = errors.New("resource already exists")
)
