// Package addon implements the declarative add-on dependency resolver:
// AddOns declare names, dependencies, and the lifecycle stages they
// subscribe to; AddOnManager resolves install order and fans out
// lifecycle hooks.
package addon

import "context"

// LifecycleState is one stage of the fixed per-invocation lifecycle,
// ordered the way the runner executes them.
type LifecycleState int

const (
	StateInitialize LifecycleState = iota
	StateAuthenticate
	StateAuthorize
	StateValidate
	StateLoad
	StateProcess
	StateMonitor
	StateSave
	StateException
	StateTerminate
)

func (s LifecycleState) String() string {
	switch s {
	case StateInitialize:
		return "INITIALIZE"
	case StateAuthenticate:
		return "AUTHENTICATE"
	case StateAuthorize:
		return "AUTHORIZE"
	case StateValidate:
		return "VALIDATE"
	case StateLoad:
		return "LOAD"
	case StateProcess:
		return "PROCESS"
	case StateMonitor:
		return "MONITOR"
	case StateSave:
		return "SAVE"
	case StateException:
		return "EXCEPTION"
	case StateTerminate:
		return "TERMINATE"
	default:
		return "UNKNOWN"
	}
}

// LifecycleEvent is delivered to every subscribed AddOn for a stage.
type LifecycleEvent struct {
	State   LifecycleState
	Source  string
	Context any
	Err     error
}

// AddOn is a named, dependency-declaring plug-in. Dependencies may be a
// bare name ("cache") or a semver-constrained name ("cache@^1.2.0"); see
// ParseDependency.
type AddOn interface {
	Name() string
	Version() string
	Dependencies() []string
	LifecycleHooks() map[LifecycleState]struct{}

	Install(ctx context.Context, envelope any) error
	Initialize(ctx context.Context, envelope any, sharedState map[string]any) error
	DoLifeCycle(ctx context.Context, event LifecycleEvent) error
}

// BaseAddOn is an embeddable convenience base: most add-ons don't
// subscribe to every stage and have no-op Install/Initialize.
type BaseAddOn struct {
	NameValue    string
	VersionValue string
	Deps         []string
	Hooks        map[LifecycleState]struct{}
}

func (b *BaseAddOn) Name() string                                          { return b.NameValue }
func (b *BaseAddOn) Version() string                                       { return b.VersionValue }
func (b *BaseAddOn) Dependencies() []string                                { return b.Deps }
func (b *BaseAddOn) LifecycleHooks() map[LifecycleState]struct{}           { return b.Hooks }
func (b *BaseAddOn) Install(context.Context, any) error                    { return nil }
func (b *BaseAddOn) Initialize(context.Context, any, map[string]any) error { return nil }
func (b *BaseAddOn) DoLifeCycle(context.Context, LifecycleEvent) error     { return nil }
