// Package rtcontext implements the request-scoped Context every
// invocation carries through the lifecycle: its generated request id,
// optional trace id, the authenticated subject, a free-form session map,
// the envelope's bindings, and a logger bound to the request and trace ids.
package rtcontext

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/faasrt/core/pkg/config"
	"github.com/faasrt/core/pkg/host"
	"github.com/faasrt/core/pkg/sentry"
)

const defaultAction = "process"

// Context is request-scoped and single-threaded: one instance per
// invocation, borrowed from the process-wide Configuration for the
// duration of a request.
type Context struct {
	ctx       context.Context
	requestID string
	traceID   string
	monitor   bool
	action    string
	subject   *sentry.Subject
	session   map[string]any
	config    *config.Configuration
	envelope  host.Envelope
	logger    *slog.Logger
}

// New builds a Context for one invocation. requestID is a fresh UUIDv4;
// traceID comes from the envelope's trace context, if any.
func New(ctx context.Context, envelope host.Envelope, cfg *config.Configuration, logger *slog.Logger) *Context {
	requestID := uuid.NewString()

	var traceID string
	if tc := envelope.Trace(); tc != nil {
		traceID = tc.TraceParent()
	}

	bound := logger.With("request_id", requestID)
	if traceID != "" {
		bound = bound.With("trace_id", traceID)
	}

	return &Context{
		ctx:       ctx,
		requestID: requestID,
		traceID:   traceID,
		action:    defaultAction,
		session:   make(map[string]any),
		config:    cfg,
		envelope:  envelope,
		logger:    bound,
	}
}

// RequestID implements sentry.RequestInfo and addon's structural needs.
func (c *Context) RequestID() string { return c.requestID }

// TraceID returns the propagated W3C traceparent, or empty if none.
func (c *Context) TraceID() string { return c.traceID }

// Monitor reports whether this invocation should run the monitor stage
// instead of process.
func (c *Context) Monitor() bool { return c.monitor }

// SetMonitor flags this invocation as a monitor-mode dispatch.
func (c *Context) SetMonitor(monitor bool) { c.monitor = monitor }

// Action returns the protected action this invocation authorizes against.
func (c *Context) Action() string { return c.action }

// SetAction overrides the default "process" action.
func (c *Context) SetAction(action string) {
	if action == "" {
		return
	}
	c.action = action
}

// Subject returns the authenticated subject, or nil before authentication
// runs.
func (c *Context) Subject() *sentry.Subject { return c.subject }

// SetSubject installs the authenticated subject.
func (c *Context) SetSubject(subject *sentry.Subject) { c.subject = subject }

// Session is the free-form, request-scoped key/value bag author handlers
// may use to pass state between lifecycle stages.
func (c *Context) Session() map[string]any { return c.session }

// Configuration returns the process-wide Configuration this request
// borrows its singleton collaborators from.
func (c *Context) Configuration() *config.Configuration { return c.config }

// Binding returns a named input/output slot of the host envelope.
func (c *Context) Binding(name string) (any, bool) {
	return c.envelope.Binding(name)
}

// SetBinding sets a named output slot on the host envelope.
func (c *Context) SetBinding(name string, value any) { c.envelope.SetBinding(name, value) }

// Logger returns the request-bound structured logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Context returns the underlying deadline-bearing context.Context.
func (c *Context) Context() context.Context { return c.ctx }

// WithContext returns a shallow copy of c carrying a replacement
// context.Context, e.g. one holding a tracing span as its parent.
func (c *Context) WithContext(ctx context.Context) *Context {
	clone := *c
	clone.ctx = ctx
	return &clone
}

var (
	_ sentry.RequestInfo = (*Context)(nil)
)
