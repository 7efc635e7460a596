package addon

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/faasrt/core/pkg/rterrors"
)

// Dependency is a parsed AddOn dependency declaration: a bare name, or a
// name plus a semver constraint ("cache@^1.2.0").
type Dependency struct {
	Name       string
	Constraint *semver.Constraints
}

// ParseDependency splits "name" or "name@constraint" into a Dependency.
func ParseDependency(raw string) (Dependency, error) {
	name, constraintStr, hasConstraint := strings.Cut(raw, "@")
	name = strings.TrimSpace(name)
	if name == "" {
		return Dependency{}, rterrors.NewConfigurationError("add-on dependency name must not be empty")
	}
	if !hasConstraint {
		return Dependency{Name: name}, nil
	}
	c, err := semver.NewConstraint(constraintStr)
	if err != nil {
		return Dependency{}, rterrors.NewConfigurationError(
			fmt.Sprintf("add-on dependency %q has an invalid version constraint", raw), rterrors.WithCause(err))
	}
	return Dependency{Name: name, Constraint: c}, nil
}

// satisfiedBy reports whether addon (already accepted into target)
// satisfies this dependency: same name and, if a constraint was given, a
// parseable installed version matching it.
func (d Dependency) satisfiedBy(candidate AddOn) bool {
	if candidate.Name() != d.Name {
		return false
	}
	if d.Constraint == nil {
		return true
	}
	v, err := semver.NewVersion(candidate.Version())
	if err != nil {
		return false
	}
	return d.Constraint.Check(v)
}

// pending is an AddOn still waiting on at least one unsatisfied
// dependency.
type pending struct {
	addon AddOn
	deps  []Dependency
}

// Manager resolves AddOn install order from declared dependencies and
// fans out lifecycle hooks in that order.
type Manager struct {
	target     []AddOn
	unresolved map[string]*pending
	order      []string // insertion order of unresolved names, for deterministic error messages
}

// NewManager returns an empty AddOnManager.
func NewManager() *Manager {
	return &Manager{unresolved: make(map[string]*pending)}
}

func (m *Manager) isAccepted(name string) bool {
	for _, a := range m.target {
		if a.Name() == name {
			return true
		}
	}
	return false
}

func (m *Manager) dependenciesSatisfied(deps []Dependency) bool {
	for _, d := range deps {
		satisfied := false
		for _, a := range m.target {
			if d.satisfiedBy(a) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

// Add registers addon. If every declared dependency is already accepted
// into target, addon is appended immediately (or, if an add-on with the
// same name was already accepted, replaces it in place); otherwise it
// waits in unresolved. Either way, Add then rescans unresolved to a
// fixpoint, since accepting addon may have unblocked others.
func (m *Manager) Add(a AddOn) error {
	deps := make([]Dependency, 0, len(a.Dependencies()))
	for _, raw := range a.Dependencies() {
		d, err := ParseDependency(raw)
		if err != nil {
			return err
		}
		deps = append(deps, d)
	}

	if m.dependenciesSatisfied(deps) {
		if m.isAccepted(a.Name()) {
			for i, existing := range m.target {
				if existing.Name() == a.Name() {
					m.target[i] = a
				}
			}
		} else {
			m.target = append(m.target, a)
		}
	} else {
		if _, exists := m.unresolved[a.Name()]; !exists {
			m.order = append(m.order, a.Name())
		}
		m.unresolved[a.Name()] = &pending{addon: a, deps: deps}
	}

	m.resolveToFixpoint()
	return nil
}

func (m *Manager) resolveToFixpoint() {
	for {
		progressed := false
		for _, name := range m.order {
			p, ok := m.unresolved[name]
			if !ok {
				continue
			}
			if m.dependenciesSatisfied(p.deps) {
				m.target = append(m.target, p.addon)
				delete(m.unresolved, name)
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

// Unresolved returns the names still waiting on missing or
// version-incompatible dependencies, in the order they were added.
func (m *Manager) Unresolved() []string {
	out := make([]string, 0, len(m.unresolved))
	for _, name := range m.order {
		if _, ok := m.unresolved[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Order returns the accepted install order.
func (m *Manager) Order() []AddOn {
	return m.target
}

// Install fails with a ConfigurationError naming every still-unresolved
// add-on if any remain, otherwise calls Install on each accepted add-on in
// order.
func (m *Manager) Install(ctx context.Context, envelope any) error {
	if names := m.Unresolved(); len(names) > 0 {
		return rterrors.NewConfigurationError(
			fmt.Sprintf("unresolved add-on dependencies: %s", strings.Join(names, ", ")))
	}
	for _, a := range m.target {
		if err := a.Install(ctx, envelope); err != nil {
			return err
		}
	}
	return nil
}

// Initialize calls Initialize on each accepted add-on in order.
func (m *Manager) Initialize(ctx context.Context, envelope any, sharedState map[string]any) error {
	for _, a := range m.target {
		if err := a.Initialize(ctx, envelope, sharedState); err != nil {
			return err
		}
	}
	return nil
}

// DoLifeCycle invokes DoLifeCycle on every accepted add-on subscribed to
// state, in order. Add-ons that did not subscribe are skipped.
func (m *Manager) DoLifeCycle(ctx context.Context, state LifecycleState, source string, reqCtx any, cause error) error {
	event := LifecycleEvent{State: state, Source: source, Context: reqCtx, Err: cause}
	for _, a := range m.target {
		hooks := a.LifecycleHooks()
		if hooks == nil {
			continue
		}
		if _, subscribed := hooks[state]; !subscribed {
			continue
		}
		if err := a.DoLifeCycle(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
