package sentry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faasrt/core/pkg/rterrors"
	"github.com/faasrt/core/pkg/sentry"
)

func TestAssertRejectsEmptyName(t *testing.T) {
	a := sentry.NewAsserter()
	err := a.Assert("  ", true, nil, "")
	require.Error(t, err)
	assert.True(t, rterrors.Is(err, rterrors.KindValidation))
}

func TestHasAffirmativeAssertion(t *testing.T) {
	a := sentry.NewAsserter()
	assert.False(t, a.HasAffirmativeAssertion())

	require.NoError(t, a.Assert("authA", false, nil, "failed"))
	assert.False(t, a.HasAffirmativeAssertion())

	require.NoError(t, a.Assert("authB", true, []string{"role1"}, "ok"))
	assert.True(t, a.HasAffirmativeAssertion())
}

// TestAssignIsIdempotent covers the round-trip/idempotence property:
// repeated Assign calls never duplicate roles.
func TestAssignIsIdempotent(t *testing.T) {
	a := sentry.NewAsserter()
	require.NoError(t, a.Assert("authA", true, []string{"role1", "role2"}, ""))

	subject := sentry.NewSubject("req-1")
	a.Assign(subject)
	a.Assign(subject)
	a.Assign(subject)

	assert.Equal(t, []string{"role1", "role2"}, subject.Roles())
}
