package addon_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faasrt/core/pkg/addon"
	"github.com/faasrt/core/pkg/rterrors"
)

type stubAddOn struct {
	addon.BaseAddOn
}

func newStub(name, version string, deps ...string) *stubAddOn {
	return &stubAddOn{addon.BaseAddOn{NameValue: name, VersionValue: version, Deps: deps}}
}

// TestAddOnDependencyOrdering is scenario S5: adding [B(deps=[A]),
// D(deps=[A,C]), C(deps=[A]), A] produces install order [A, B, C, D].
func TestAddOnDependencyOrdering(t *testing.T) {
	m := addon.NewManager()

	require.NoError(t, m.Add(newStub("B", "1.0.0", "A")))
	require.NoError(t, m.Add(newStub("D", "1.0.0", "A", "C")))
	require.NoError(t, m.Add(newStub("C", "1.0.0", "A")))
	require.NoError(t, m.Add(newStub("A", "1.0.0")))

	var names []string
	for _, a := range m.Order() {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, names)
	assert.Empty(t, m.Unresolved())
	require.NoError(t, m.Install(context.Background(), nil))
}

// TestAddOnUnresolvedDependencyFailsInstall covers the second half of S5:
// a missing dependency name leaves the add-on unresolved and Install
// fails naming it.
func TestAddOnUnresolvedDependencyFailsInstall(t *testing.T) {
	m := addon.NewManager()

	require.NoError(t, m.Add(newStub("B", "1.0.0", "A")))
	require.NoError(t, m.Add(newStub("D", "1.0.0", "A", "C", "X")))
	require.NoError(t, m.Add(newStub("C", "1.0.0", "A")))
	require.NoError(t, m.Add(newStub("A", "1.0.0")))

	assert.Equal(t, []string{"D"}, m.Unresolved())

	err := m.Install(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, rterrors.Is(err, rterrors.KindConfiguration))
	assert.Contains(t, err.Error(), "D")
}

// TestAddOnVersionConstraint exercises the versioned-dependency supplement:
// a "name@constraint" dependency resolves only once the matching AddOn's
// declared Version satisfies the constraint.
func TestAddOnVersionConstraint(t *testing.T) {
	m := addon.NewManager()

	require.NoError(t, m.Add(newStub("consumer", "1.0.0", "cache@^2.0.0")))
	assert.Equal(t, []string{"consumer"}, m.Unresolved())

	require.NoError(t, m.Add(newStub("cache", "1.5.0")))
	assert.Equal(t, []string{"consumer"}, m.Unresolved(), "cache 1.5.0 does not satisfy ^2.0.0")

	require.NoError(t, m.Add(newStub("cache", "2.1.0")))
	assert.Empty(t, m.Unresolved())

	var names []string
	for _, a := range m.Order() {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{"cache", "consumer"}, names)
}

// recordingAddOn records every lifecycle stage it was invoked for.
type recordingAddOn struct {
	addon.BaseAddOn
	seen []addon.LifecycleState
}

func (r *recordingAddOn) DoLifeCycle(_ context.Context, event addon.LifecycleEvent) error {
	r.seen = append(r.seen, event.State)
	return nil
}

// TestDoLifeCycleFiresOnlyForSubscribedStages is scenario S6: an add-on
// subscribing to {LOAD, SAVE} records exactly those two stages across a
// full run of every lifecycle state.
func TestDoLifeCycleFiresOnlyForSubscribedStages(t *testing.T) {
	rec := &recordingAddOn{BaseAddOn: addon.BaseAddOn{
		NameValue: "recorder",
		Hooks: map[addon.LifecycleState]struct{}{
			addon.StateLoad: {},
			addon.StateSave: {},
		},
	}}

	m := addon.NewManager()
	require.NoError(t, m.Add(rec))
	require.NoError(t, m.Install(context.Background(), nil))

	stages := []addon.LifecycleState{
		addon.StateInitialize, addon.StateAuthenticate, addon.StateAuthorize,
		addon.StateValidate, addon.StateLoad, addon.StateProcess, addon.StateSave,
		addon.StateTerminate,
	}
	for _, s := range stages {
		require.NoError(t, m.DoLifeCycle(context.Background(), s, "test", nil, nil))
	}

	assert.Equal(t, []addon.LifecycleState{addon.StateLoad, addon.StateSave}, rec.seen)
}
