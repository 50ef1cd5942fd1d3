package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping and policy decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthenticationRequired
	KindPermissionDenied
	KindNotFound
	KindInvalidArgument
	KindConflict
	KindInternalConfiguration
)

// Error is the service-wide error type. Services wrap causes with %w as usual;
// handlers map the Kind to an HTTP status via Status().
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf formats a message into an error of the given kind.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to an error of the given kind.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// AuthenticationRequired means no identity is present on the request.
func AuthenticationRequired(message string) *Error {
	return New(KindAuthenticationRequired, message)
}

// PermissionDenied names the missing permission key. The key is safe to
// disclose; it never says why the key is absent.
func PermissionDenied(permissionKey string) *Error {
	return Newf(KindPermissionDenied, "missing permission '%s'", permissionKey)
}

// NotFound is used both for true absence and for records owned by another
// tenant. The two must stay indistinguishable.
func NotFound(resource string) *Error {
	return Newf(KindNotFound, "%s not found", resource)
}

// InvalidArgument flags malformed caller input.
func InvalidArgument(message string) *Error {
	return New(KindInvalidArgument, message)
}

// Conflict flags a request that contradicts current state.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// InternalConfiguration signals a deployment defect (e.g. a broken middleware
// chain), not bad caller input. It should alert operators.
func InternalConfiguration(message string) *Error {
	return New(KindInternalConfiguration, message)
}

// KindOf extracts the Kind from an error chain, KindUnknown if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Status maps an error to an HTTP status code.
func Status(err error) int {
	switch KindOf(err) {
	case KindAuthenticationRequired:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
