package rterrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faasrt/core/pkg/rterrors"
)

func TestConstructorsSetKindAndCode(t *testing.T) {
	cases := []struct {
		name string
		err  *rterrors.RuntimeError
		kind rterrors.Kind
		code int
	}{
		{"configuration", rterrors.NewConfigurationError("bad config"), rterrors.KindConfiguration, 500},
		{"validation", rterrors.NewValidationError("bad arg"), rterrors.KindValidation, 400},
		{"auth", rterrors.NewAuthError("no subject"), rterrors.KindAuth, 401},
		{"access", rterrors.NewAccessError("denied"), rterrors.KindAccess, 403},
		{"notfound", rterrors.NewNotFoundError("missing"), rterrors.KindNotFound, 404},
		{"transient", rterrors.NewTransientError("timeout"), rterrors.KindTransient, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, tc.err.Kind)
			assert.Equal(t, tc.code, tc.err.Code)
			assert.True(t, rterrors.Is(tc.err, tc.kind))
		})
	}
}

func TestWithTagAndCause(t *testing.T) {
	cause := errors.New("upstream failure")
	err := rterrors.NewConfigurationError("bad property", rterrors.WithTag("myKey"), rterrors.WithCause(cause))

	require.Equal(t, "myKey", err.Tag)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "tag=myKey")
}

func TestWithDrop(t *testing.T) {
	err := rterrors.NewConfigurationError("silent", rterrors.WithDrop())
	assert.True(t, rterrors.IsDrop(err))

	other := rterrors.NewConfigurationError("not silent")
	assert.False(t, rterrors.IsDrop(other))
}

func TestIsRejectsOtherErrorTypes(t *testing.T) {
	assert.False(t, rterrors.Is(errors.New("plain"), rterrors.KindConfiguration))
	assert.False(t, rterrors.IsDrop(errors.New("plain")))
}
