// Package lifecycle drives the fixed per-invocation state machine:
// bootstrap, initialize, authenticate, authorize, validate, load,
// monitor-or-process, save, exception, terminate. Author business logic
// plugs in through small optional interfaces, dispatched the way
// http.Flusher is: a handler only implements the stages it cares about.
package lifecycle

import (
	"context"

	"github.com/faasrt/core/pkg/rtcontext"
)

// InitializeHandler runs during the initialize stage, after
// Configuration.Initialize/Bootstrapped but before authentication.
type InitializeHandler interface {
	Initialize(ctx context.Context, rc *rtcontext.Context) error
}

// ValidateHandler runs during the validate stage, after authorization.
type ValidateHandler interface {
	Validate(ctx context.Context, rc *rtcontext.Context) error
}

// LoadHandler runs during the load stage, after validation.
type LoadHandler interface {
	Load(ctx context.Context, rc *rtcontext.Context) error
}

// ProcessHandler is the invocation's main business logic, run when
// rc.Monitor() is false.
type ProcessHandler interface {
	Process(ctx context.Context, rc *rtcontext.Context) error
}

// MonitorHandler runs instead of ProcessHandler when rc.Monitor() is
// true.
type MonitorHandler interface {
	Monitor(ctx context.Context, rc *rtcontext.Context) error
}

// SaveHandler runs after process/monitor completes successfully.
type SaveHandler interface {
	Save(ctx context.Context, rc *rtcontext.Context) error
}

// ExceptionHandler is invoked when any stage up to and including save
// fails, with the triggering error. Its own error (if any) replaces the original for
// reporting purposes.
type ExceptionHandler interface {
	OnException(ctx context.Context, rc *rtcontext.Context, cause error) error
}

// TerminateHandler always runs last, regardless of outcome.
type TerminateHandler interface {
	Terminate(ctx context.Context, rc *rtcontext.Context) error
}
