// Package fault defines the typed error taxonomy shared by the extraction,
// conversion, provider and orchestration layers. Every failure that crosses a
// component boundary is a *Error carrying a Kind, a human-readable message,
// and an optional cause; raw transport errors stay in the cause chain and are
// never shown to end users.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes a pipeline failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnsupportedType
	KindNoExtractableText
	KindNoBackendAvailable
	KindVisionNotSupported
	KindNotConfigured
	KindConnection
	KindRateLimited
	KindServiceUnavailable
	KindEmptyResponse
	KindJSONParse
	KindFileNotFound
	KindFileUnreadable
)

// String returns a stable identifier for the kind.
func (k Kind) String() string {
	switch k {
	case KindUnsupportedType:
		return "UNSUPPORTED_TYPE"
	case KindNoExtractableText:
		return "NO_EXTRACTABLE_TEXT"
	case KindNoBackendAvailable:
		return "NO_BACKEND_AVAILABLE"
	case KindVisionNotSupported:
		return "VISION_NOT_SUPPORTED"
	case KindNotConfigured:
		return "NOT_CONFIGURED"
	case KindConnection:
		return "CONNECTION_ERROR"
	case KindRateLimited:
		return "RATE_LIMITED"
	case KindServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case KindEmptyResponse:
		return "EMPTY_RESPONSE"
	case KindJSONParse:
		return "JSON_PARSE_ERROR"
	case KindFileNotFound:
		return "FILE_NOT_FOUND"
	case KindFileUnreadable:
		return "FILE_UNREADABLE"
	default:
		return "UNKNOWN"
	}
}

// Error is the one error type crossing component boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches two *Error values by Kind, so errors.Is(err, fault.New(kind, ""))
// style sentinels work without comparing messages.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds an error with no cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause. The cause is kept for logs and errors.As; Message is
// what callers may surface to users.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// UserMessage renders an error for end users: kind and message only. The
// cause chain may carry raw upstream payloads and belongs in logs, not in
// anything shown to a caller.
func UserMessage(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fmt.Sprintf("[%s] %s", fe.Kind, fe.Message)
	}
	return err.Error()
}

// KindOf extracts the Kind from any error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
