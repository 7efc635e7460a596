// Package rterrors defines the closed error taxonomy used across the
// request-processing runtime: configuration, validation, authentication,
// authorization, not-found, and transient failures. Every error carries a
// numeric code, a drop flag, an optional tag, and its wrapped cause so
// callers can unwrap with errors.As/errors.Is.
package rterrors

import "fmt"

// Kind classifies an error the way the runtime's lifecycle and property
// layers need to branch on.
type Kind string

const (
	KindConfiguration Kind = "CONFIGURATION"
	KindValidation    Kind = "VALIDATION"
	KindAuth          Kind = "AUTH"
	KindAccess        Kind = "ACCESS"
	KindNotFound      Kind = "NOT_FOUND"
	KindTransient     Kind = "TRANSIENT"
)

// RuntimeError is the common shape for every error kind in this package.
type RuntimeError struct {
	Kind    Kind
	Code    int
	Message string
	Tag     string
	Drop    bool
	Cause   error
}

func (e *RuntimeError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("[%s %d] %s (tag=%s)", e.Kind, e.Code, e.Message, e.Tag)
	}
	return fmt.Sprintf("[%s %d] %s", e.Kind, e.Code, e.Message)
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// Option mutates a RuntimeError at construction time.
type Option func(*RuntimeError)

// WithTag attaches the field tag identifying the offending input.
func WithTag(tag string) Option {
	return func(e *RuntimeError) { e.Tag = tag }
}

// WithCause attaches the wrapped underlying cause.
func WithCause(cause error) Option {
	return func(e *RuntimeError) { e.Cause = cause }
}

// WithDrop marks the error so the lifecycle completes the invocation
// silently instead of surfacing it to the host envelope.
func WithDrop() Option {
	return func(e *RuntimeError) { e.Drop = true }
}

func build(kind Kind, code int, message string, opts ...Option) *RuntimeError {
	e := &RuntimeError{Kind: kind, Code: code, Message: message}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewConfigurationError reports malformed configuration, a missing
// property, an unknown attribute kind, or an unresolved add-on
// dependency. Always fatal for the invocation it occurs in.
func NewConfigurationError(message string, opts ...Option) *RuntimeError {
	return build(KindConfiguration, 500, message, opts...)
}

// NewValidationError reports a bad argument shape at an API boundary.
func NewValidationError(message string, opts ...Option) *RuntimeError {
	return build(KindValidation, 400, message, opts...)
}

// NewAuthError reports that authentication could not produce a subject,
// or that a required Authenticator failed.
func NewAuthError(message string, opts ...Option) *RuntimeError {
	return build(KindAuth, 401, message, opts...)
}

// NewAccessError reports that authorization denied the request.
func NewAccessError(message string, opts ...Option) *RuntimeError {
	return build(KindAccess, 403, message, opts...)
}

// NewNotFoundError reports that the config store or secret store had no
// value for a required lookup.
func NewNotFoundError(message string, opts ...Option) *RuntimeError {
	return build(KindNotFound, 404, message, opts...)
}

// NewTransientError reports an upstream timeout or network failure that
// may be retried at the caller's discretion.
func NewTransientError(message string, opts ...Option) *RuntimeError {
	return build(KindTransient, 0, message, opts...)
}

// Is reports whether err is a RuntimeError of the given kind.
func Is(err error, kind Kind) bool {
	re, ok := err.(*RuntimeError)
	if !ok {
		return false
	}
	return re.Kind == kind
}

// IsDrop reports whether err is a RuntimeError marked to be dropped
// silently rather than surfaced to the host envelope.
func IsDrop(err error) bool {
	re, ok := err.(*RuntimeError)
	return ok && re.Drop
}
