package sentry_test

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faasrt/core/pkg/sentry"
)

type fakeRequestInfo struct {
	id       string
	bindings map[string]any
}

func (f fakeRequestInfo) RequestID() string { return f.id }
func (f fakeRequestInfo) Binding(name string) (any, bool) {
	v, ok := f.bindings[name]
	return v, ok
}

var signingKey = []byte("test-signing-key")

func signedToken(t *testing.T, roles []string) string {
	t.Helper()
	claims := jwt.MapClaims{"roles": roles}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(signingKey)
	require.NoError(t, err)
	return s
}

func keyFunc(*jwt.Token) (any, error) { return signingKey, nil }

// TestSentryAuthenticateAssignsRolesFromJWT covers a required
// JWTAuthenticator contributing roles via the Authenticate chain.
func TestSentryAuthenticateAssignsRolesFromJWT(t *testing.T) {
	auth := sentry.NewJWTAuthenticator("jwt", "authorization", "roles", true, keyFunc)
	s := sentry.New([]sentry.Authenticator{auth}, nil, sentry.NewMapPermissionManager(), false)

	info := fakeRequestInfo{id: "req-1", bindings: map[string]any{
		"authorization": "Bearer " + signedToken(t, []string{"admin"}),
	}}

	subject, err := s.Authenticate(context.Background(), info)
	require.NoError(t, err)
	assert.True(t, subject.HasRole("admin"))
}

// TestSentryAuthenticateFailsWhenRequiredAuthenticatorSilent covers the
// required-but-not-affirmative failure path.
func TestSentryAuthenticateFailsWhenRequiredAuthenticatorSilent(t *testing.T) {
	auth := sentry.NewJWTAuthenticator("jwt", "authorization", "roles", true, keyFunc)
	s := sentry.New([]sentry.Authenticator{auth}, nil, sentry.NewMapPermissionManager(), false)

	info := fakeRequestInfo{id: "req-1", bindings: map[string]any{}}

	_, err := s.Authenticate(context.Background(), info)
	require.Error(t, err)
}

// TestSentryAuthorizeOptimisticAllowsUndeclaredAction covers the
// optimistic-mode fallback for an action with no declared Permission.
func TestSentryAuthorizeOptimisticAllowsUndeclaredAction(t *testing.T) {
	s := sentry.New(nil, nil, sentry.NewMapPermissionManager(), true)
	subject := sentry.NewSubject("req-1")

	err := s.Authorize(context.Background(), subject, "process")
	assert.NoError(t, err)
}

// TestSentryAuthorizePessimisticDeniesUndeclaredAction covers the
// non-optimistic equivalent: an undeclared action fails closed.
func TestSentryAuthorizePessimisticDeniesUndeclaredAction(t *testing.T) {
	s := sentry.New(nil, nil, sentry.NewMapPermissionManager(), false)
	subject := sentry.NewSubject("req-1")

	err := s.Authorize(context.Background(), subject, "process")
	require.Error(t, err)
}

// TestSentryAuthorizeEvaluatesDeclaredPermission covers a declared
// Permission with a MatchAny role match.
func TestSentryAuthorizeEvaluatesDeclaredPermission(t *testing.T) {
	pm := sentry.NewMapPermissionManager()
	perm, err := sentry.NewPermission("process", []string{"admin", "operator"}, sentry.MatchAny{})
	require.NoError(t, err)
	pm.Add(perm)

	s := sentry.New(nil, nil, pm, false)

	allowed := sentry.NewSubject("req-1")
	allowed.AddRoles("operator")
	assert.NoError(t, s.Authorize(context.Background(), allowed, "process"))

	denied := sentry.NewSubject("req-2")
	denied.AddRoles("guest")
	assert.Error(t, s.Authorize(context.Background(), denied, "process"))
}
