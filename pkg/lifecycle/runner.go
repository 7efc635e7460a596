package lifecycle

import (
	"log/slog"

	"github.com/faasrt/core/pkg/addon"
	"github.com/faasrt/core/pkg/config"
	"github.com/faasrt/core/pkg/host"
	"github.com/faasrt/core/pkg/observability"
	"github.com/faasrt/core/pkg/rterrors"
	"github.com/faasrt/core/pkg/rtcontext"
)

// Runner drives the fixed lifecycle state machine for every invocation
// dispatched against one Configuration.
type Runner struct {
	cfg         *config.Configuration
	propertyKey string
	logger      *slog.Logger
	telemetry   *observability.Provider
}

// New builds a Runner. propertyKey names the property holding the
// configuration document; logger is the fallback logger used before a
// request-scoped one exists.
func New(cfg *config.Configuration, propertyKey string, logger *slog.Logger, telemetry *observability.Provider) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, propertyKey: propertyKey, logger: logger, telemetry: telemetry}
}

// stageFn wraps the possibly-nil author handler invocation for one
// lifecycle stage.
type stageFn func(rc *rtcontext.Context) error

// Run executes bootstrap through terminate for one invocation, dispatching
// to whichever optional handler interfaces handler implements, and calls
// envelope.Done exactly once.
func (r *Runner) Run(handler any, envelope host.Envelope) {
	ctx := envelope.Context()

	if err := r.cfg.Initialize(ctx, r.propertyKey); err != nil {
		envelope.Done(nil, err)
		return
	}
	if err := r.cfg.Bootstrapped(ctx, envelope); err != nil {
		envelope.Done(nil, err)
		return
	}

	rc := rtcontext.New(ctx, envelope, r.cfg, r.logger)

	var traceParent string
	if tc := envelope.Trace(); tc != nil {
		traceParent = tc.TraceParent()
	}
	spanCtx, endInvocation := r.telemetry.StartInvocation(ctx, rc.RequestID(), traceParent)
	rc = rc.WithContext(spanCtx)

	result, err := r.runPipeline(rc, handler)

	if err != nil {
		if rterrors.IsDrop(err) {
			endInvocation.End()
			envelope.Done(nil, nil)
			return
		}
		endInvocation.RecordError(err)
		endInvocation.End()
		envelope.Done(nil, err)
		return
	}

	endInvocation.End()
	envelope.Done(result, nil)
}

func (r *Runner) runPipeline(rc *rtcontext.Context, handler any) (any, error) {
	var result any

	run := func(state addon.LifecycleState, fn stageFn) error {
		_, end := r.telemetry.StartStage(rc.Context(), state.String())
		var stageErr error
		defer func() { end(stageErr) }()

		if fn != nil {
			if stageErr = fn(rc); stageErr != nil {
				return stageErr
			}
		}
		stageErr = r.cfg.AddOnManager.DoLifeCycle(rc.Context(), state, "lifecycle", rc, nil)
		return stageErr
	}

	pipelineErr := func() error {
		if h, ok := handler.(InitializeHandler); ok {
			if err := run(addon.StateInitialize, func(rc *rtcontext.Context) error { return h.Initialize(rc.Context(), rc) }); err != nil {
				return err
			}
		} else if err := run(addon.StateInitialize, nil); err != nil {
			return err
		}

		subject, err := r.cfg.Sentry.Authenticate(rc.Context(), rc)
		if err != nil {
			return err
		}
		rc.SetSubject(subject)
		if err := run(addon.StateAuthenticate, nil); err != nil {
			return err
		}

		if err := r.cfg.Sentry.Authorize(rc.Context(), subject, rc.Action()); err != nil {
			return err
		}
		if err := run(addon.StateAuthorize, nil); err != nil {
			return err
		}

		if h, ok := handler.(ValidateHandler); ok {
			if err := run(addon.StateValidate, func(rc *rtcontext.Context) error { return h.Validate(rc.Context(), rc) }); err != nil {
				return err
			}
		} else if err := run(addon.StateValidate, nil); err != nil {
			return err
		}

		if h, ok := handler.(LoadHandler); ok {
			if err := run(addon.StateLoad, func(rc *rtcontext.Context) error { return h.Load(rc.Context(), rc) }); err != nil {
				return err
			}
		} else if err := run(addon.StateLoad, nil); err != nil {
			return err
		}

		if rc.Monitor() {
			if h, ok := handler.(MonitorHandler); ok {
				if err := run(addon.StateMonitor, func(rc *rtcontext.Context) error { return h.Monitor(rc.Context(), rc) }); err != nil {
					return err
				}
			} else if err := run(addon.StateMonitor, nil); err != nil {
				return err
			}
		} else {
			if h, ok := handler.(ProcessHandler); ok {
				if err := run(addon.StateProcess, func(rc *rtcontext.Context) error { return h.Process(rc.Context(), rc) }); err != nil {
					return err
				}
			} else if err := run(addon.StateProcess, nil); err != nil {
				return err
			}
		}

		if h, ok := handler.(SaveHandler); ok {
			if err := run(addon.StateSave, func(rc *rtcontext.Context) error { return h.Save(rc.Context(), rc) }); err != nil {
				return err
			}
		} else if err := run(addon.StateSave, nil); err != nil {
			return err
		}
		return nil
	}()

	if pipelineErr != nil {
		exceptionErr := pipelineErr
		if h, ok := handler.(ExceptionHandler); ok {
			if err := h.OnException(rc.Context(), rc, pipelineErr); err != nil {
				exceptionErr = err
			}
		}
		_ = r.cfg.AddOnManager.DoLifeCycle(rc.Context(), addon.StateException, "lifecycle", rc, exceptionErr)
		r.terminate(rc, handler)
		return nil, exceptionErr
	}

	r.terminate(rc, handler)
	return result, nil
}

func (r *Runner) terminate(rc *rtcontext.Context, handler any) {
	if h, ok := handler.(TerminateHandler); ok {
		if err := h.Terminate(rc.Context(), rc); err != nil {
			rc.Logger().Warn("terminate handler failed", "error", err)
		}
	}
	if err := r.cfg.AddOnManager.DoLifeCycle(rc.Context(), addon.StateTerminate, "lifecycle", rc, nil); err != nil {
		rc.Logger().Warn("terminate add-on hook failed", "error", err)
	}
}
