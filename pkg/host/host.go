// Package host declares the external interfaces the request-processing
// runtime consumes but never implements: the serverless host's
// per-invocation envelope, its logger, and its trace context. Concrete
// HTTP/CloudEvents dispatchers live outside this module (spec §1); this
// package only carries the abstract contract described in spec §6.
package host

import "context"

// Severity enumerates the log levels an envelope's logger must support.
type Severity int

const (
	SeverityTrace Severity = iota
	SeverityVerbose
	SeverityInfo
	SeverityWarn
	SeverityError
)

// Logger is the logging sink exposed by the host envelope.
type Logger interface {
	Log(ctx context.Context, severity Severity, msg string, fields map[string]any)
}

// TraceContext carries the W3C traceparent the host propagated into the
// invocation, if any.
type TraceContext interface {
	TraceParent() string
}

// Envelope is the host-provided per-invocation object. It exposes the
// invocation id, named input/output bindings, a logger, an optional
// trace context, and the completion sinks the lifecycle runner calls
// exactly once per invocation.
type Envelope interface {
	// InvocationID is the host-assigned id for this dispatch.
	InvocationID() string

	// Binding returns the named input/output slot, or false if absent.
	Binding(name string) (any, bool)

	// SetBinding sets a named output slot.
	SetBinding(name string, value any)

	// Logger returns the envelope's logging sink.
	Logger() Logger

	// Trace returns the envelope's trace context, or nil if the host did
	// not propagate one.
	Trace() TraceContext

	// Context returns the invocation's deadline-bearing context.
	Context() context.Context

	// Done completes the invocation. Exactly one of result/err should be
	// non-nil; both nil signals a silent, resultless completion. Must be
	// invoked exactly once per invocation (spec §8 invariant 5).
	Done(result any, err error)
}
