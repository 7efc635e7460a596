package lifecycle_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faasrt/core/pkg/config"
	"github.com/faasrt/core/pkg/host"
	"github.com/faasrt/core/pkg/lifecycle"
	"github.com/faasrt/core/pkg/property"
	"github.com/faasrt/core/pkg/rtcontext"
)

type memorySource struct {
	values map[string]string
}

func (m memorySource) Lookup(_ context.Context, key string) (*string, error) {
	v, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

type noopLogger struct{}

func (noopLogger) Log(context.Context, host.Severity, string, map[string]any) {}

type fakeEnvelope struct {
	ctx      context.Context
	bindings map[string]any
	result   any
	err      error
	doneN    int
}

func newFakeEnvelope() *fakeEnvelope {
	return &fakeEnvelope{ctx: context.Background(), bindings: make(map[string]any)}
}

func (e *fakeEnvelope) InvocationID() string                { return "inv-1" }
func (e *fakeEnvelope) Binding(name string) (any, bool)     { v, ok := e.bindings[name]; return v, ok }
func (e *fakeEnvelope) SetBinding(name string, value any)   { e.bindings[name] = value }
func (e *fakeEnvelope) Logger() host.Logger                 { return noopLogger{} }
func (e *fakeEnvelope) Trace() host.TraceContext            { return nil }
func (e *fakeEnvelope) Context() context.Context            { return e.ctx }
func (e *fakeEnvelope) Done(result any, err error) {
	e.doneN++
	e.result = result
	e.err = err
}

var _ host.Envelope = (*fakeEnvelope)(nil)

type processOnlyHandler struct {
	ran bool
}

func (h *processOnlyHandler) Process(_ context.Context, rc *rtcontext.Context) error {
	h.ran = true
	rc.SetBinding("processed", true)
	return nil
}

var _ lifecycle.ProcessHandler = (*processOnlyHandler)(nil)

const minimalDoc = `{"name": "test-function"}`

// TestLifecycleRunCallsDoneExactlyOnceOnSuccess covers testable property
// 5 on the happy path.
func TestLifecycleRunCallsDoneExactlyOnceOnSuccess(t *testing.T) {
	props := property.NewManager(memorySource{values: map[string]string{"CONFIG_DOC": minimalDoc}})
	cfg := config.New(props, true) // optimistic: no declared permissions, no authenticators required

	runner := lifecycle.New(cfg, "CONFIG_DOC", nil, nil)
	handler := &processOnlyHandler{}
	envelope := newFakeEnvelope()

	runner.Run(handler, envelope)

	assert.Equal(t, 1, envelope.doneN)
	require.NoError(t, envelope.err)
	assert.True(t, handler.ran)
	assert.Equal(t, true, envelope.bindings["processed"])
}

// TestLifecycleRunCallsDoneExactlyOnceOnAuthorizationFailure covers
// testable property 5 on the authorization-denied path, and that a
// non-optimistic configuration with no declared permission for the
// default "process" action fails closed.
func TestLifecycleRunCallsDoneExactlyOnceOnAuthorizationFailure(t *testing.T) {
	props := property.NewManager(memorySource{values: map[string]string{"CONFIG_DOC": minimalDoc}})
	cfg := config.New(props, false) // pessimistic

	runner := lifecycle.New(cfg, "CONFIG_DOC", nil, nil)
	handler := &processOnlyHandler{}
	envelope := newFakeEnvelope()

	runner.Run(handler, envelope)

	assert.Equal(t, 1, envelope.doneN)
	require.Error(t, envelope.err)
	assert.False(t, handler.ran, "process must not run once authorization has failed")
}

// TestLifecycleRunMissingConfigDocument covers the bootstrap failure
// path: a missing configuration document still completes Done exactly
// once, with the error surfaced rather than silently dropped.
func TestLifecycleRunMissingConfigDocument(t *testing.T) {
	props := property.NewManager(memorySource{values: map[string]string{}})
	cfg := config.New(props, true)

	runner := lifecycle.New(cfg, "CONFIG_DOC", nil, nil)
	envelope := newFakeEnvelope()

	runner.Run(&processOnlyHandler{}, envelope)

	assert.Equal(t, 1, envelope.doneN)
	require.Error(t, envelope.err)
}

func init() {
	// sanity check the minimal document really does parse as valid json,
	// guarding against a typo silently turning every test above into a
	// configuration-error test.
	var v map[string]any
	if err := json.Unmarshal([]byte(minimalDoc), &v); err != nil {
		panic(err)
	}
}
