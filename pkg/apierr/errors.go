// Package apierr classifies storefront API failures into a closed set of
// error kinds shared by every layer of the client.
package apierr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a classified API failure.
type Kind string

const (
	// KindAuthNotAuthorized means the backend rejected the session outright.
	KindAuthNotAuthorized Kind = "auth_not_authorized"

	// KindAuthUnauthenticated means the request lacked valid credentials.
	KindAuthUnauthenticated Kind = "auth_unauthenticated"

	// KindBadInput means the request payload was malformed or invalid.
	KindBadInput Kind = "bad_input"

	// KindForbidden means the authenticated user may not perform the action.
	KindForbidden Kind = "forbidden"

	// KindNotFound means the addressed resource does not exist.
	KindNotFound Kind = "not_found"

	// KindInternal means the backend failed while handling the request.
	KindInternal Kind = "internal_server_error"

	// KindNetwork means the request never produced an HTTP response.
	KindNetwork Kind = "network_error"

	// KindUnknown covers every failure outside the mapped set.
	KindUnknown Kind = "unknown"
)

// RequestContext carries diagnostic information about the request that
// produced a classified error.
type RequestContext struct {
	// Method is the HTTP method of the failed request.
	Method string

	// Target is the route or query operation name.
	Target string

	// RequestID is the per-dispatch correlation ID.
	RequestID string
}

// Error is a classified storefront API failure.
type Error struct {
	Kind         Kind
	RawMessage   string // verbatim backend message or body text
	UserMessage  string // fixed user-facing copy for the kind
	Retryable    bool
	RequiresAuth bool
	StatusCode   int // 0 when the request never completed
	Cause        error
	Request      RequestContext
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.RawMessage
	if msg == "" {
		msg = e.UserMessage
	}
	if e.Cause != nil {
		return fmt.Sprintf("storefront %s error (status %d): %s: %v",
			e.Kind, e.StatusCode, msg, e.Cause)
	}
	return fmt.Sprintf("storefront %s error (status %d): %s",
		e.Kind, e.StatusCode, msg)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches classified errors by kind, so errors.Is(err, &Error{Kind: k})
// works without comparing the remaining fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// IsKind reports whether err wraps a classified error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// IsRetryable reports whether err wraps a classified error that is safe to
// retry.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Retryable
}

// NeedsAuth reports whether err wraps a classified error that requires the
// session to re-authenticate before the operation can succeed.
func NeedsAuth(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.RequiresAuth
}
