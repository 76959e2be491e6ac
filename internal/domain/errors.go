package domain

import (
	"errors"
	"strings"
)

// ErrorKind is the closed set of failures every backend maps into.
type ErrorKind string

const (
	KindUnsupportedPlatform  ErrorKind = "unsupported-platform"
	KindEnvironmentInvalid   ErrorKind = "environment-invalid"
	KindSessionUnavailable   ErrorKind = "session-unavailable"
	KindQueryFailed          ErrorKind = "query-failed"
	KindProductNotFound      ErrorKind = "product-not-found"
	KindPurchaseIncomplete   ErrorKind = "purchase-incomplete"
	KindNetworkError         ErrorKind = "network-error"
	KindServerError          ErrorKind = "server-error"
	KindPurchaseFailed       ErrorKind = "purchase-failed"
	KindDeserializationError ErrorKind = "deserialization-error"
	KindInvocationRejected   ErrorKind = "invocation-rejected"
	KindUnrecognized         ErrorKind = "unrecognized"
)

// Error is the typed failure handed back to the host. Code and Message are
// optional; Err keeps the underlying cause for logging.
type Error struct {
	Kind    ErrorKind
	Code    *string
	Message *string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Code != nil {
		b.WriteString(" [")
		b.WriteString(*e.Code)
		b.WriteString("]")
	}
	if e.Message != nil {
		b.WriteString(": ")
		b.WriteString(*e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds an Error. An empty code or message is left unset.
func NewError(kind ErrorKind, code, message string) *Error {
	e := &Error{Kind: kind}
	if code != "" {
		e.Code = Ptr(code)
	}
	if message != "" {
		e.Message = Ptr(message)
	}
	return e
}

// Wrap is NewError with an underlying cause.
func Wrap(kind ErrorKind, code, message string, err error) *Error {
	e := NewError(kind, code, message)
	e.Err = err
	return e
}

var (
	ErrUnsupportedPlatform  = NewError(KindUnsupportedPlatform, "", "IAP is not supported on this platform")
	ErrEnvironmentInvalid   = NewError(KindEnvironmentInvalid, "", "IAP requires the app to run from a .app bundle.")
	ErrSessionUnavailable   = &Error{Kind: KindSessionUnavailable}
	ErrQueryFailed          = &Error{Kind: KindQueryFailed}
	ErrProductNotFound      = NewError(KindProductNotFound, "productNotFound", "Product not found")
	ErrPurchaseIncomplete   = NewError(KindPurchaseIncomplete, "purchaseNotCompleted", "Purchase was not completed")
	ErrNetworkError         = NewError(KindNetworkError, "networkError", "Network error during purchase")
	ErrServerError          = NewError(KindServerError, "serverError", "Server error during purchase")
	ErrPurchaseFailed       = NewError(KindPurchaseFailed, "purchaseFailed", "Purchase failed")
	ErrDeserialization      = &Error{Kind: KindDeserializationError}
	ErrInvocationRejected   = &Error{Kind: KindInvocationRejected}
	ErrUnrecognized         = &Error{Kind: KindUnrecognized}
	ErrInitializeDeprecated = NewError(KindInvocationRejected, "deprecated",
		"initialize() is deprecated and no longer needed. The billing client initializes automatically.")
)

// KindOf reports the kind of err, or "" when err carries no domain Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
