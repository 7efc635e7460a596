package sentry

import (
	"context"
	"strings"

	"github.com/faasrt/core/pkg/rterrors"
)

// Sentry owns authentication (an ordered Authenticator chain plus a
// RoleFactory) and authorization (PermissionManager + ValueMatch) for one
// invocation.
type Sentry struct {
	authenticators []Authenticator
	roleFactory    RoleFactory
	permissions    PermissionManager
	optimistic     bool
}

// New builds a Sentry. optimistic controls whether authorize permits an
// action with no declared Permission (default should be false; callers
// pass it explicitly since Configuration owns the process-wide flag).
func New(authenticators []Authenticator, roleFactory RoleFactory, permissions PermissionManager, optimistic bool) *Sentry {
	if roleFactory == nil {
		roleFactory = NoopRoleFactory{}
	}
	return &Sentry{
		authenticators: authenticators,
		roleFactory:    roleFactory,
		permissions:    permissions,
		optimistic:     optimistic,
	}
}

// Authenticate builds a bare Subject keyed by info.RequestID(), runs every
// Authenticator in order recording assertions, fails with AuthError if any
// Required authenticator does not record an affirmative assertion under its
// own name, then unions in the RoleFactory's roles.
func (s *Sentry) Authenticate(ctx context.Context, info RequestInfo) (*Subject, error) {
	subject := NewSubject(info.RequestID())
	asserter := NewAsserter()

	for _, auth := range s.authenticators {
		if err := auth.Authenticate(ctx, info, asserter); err != nil {
			return nil, err
		}
		if auth.Required() {
			asserter.mu.Lock()
			rec := asserter.assertions[strings.TrimSpace(auth.Name())]
			asserter.mu.Unlock()
			if rec == nil || !rec.result {
				return nil, rterrors.NewAuthError("required authenticator " + auth.Name() + " produced no affirmative assertion")
			}
		}
	}

	asserter.Assign(subject)

	roles, err := s.roleFactory.GetSubjectRoles(ctx, info, subject)
	if err != nil {
		return nil, err
	}
	subject.AddRoles(roles...)

	return subject, nil
}

// Authorize looks up the Permission for action and evaluates it against
// subject. A missing Permission is permitted iff the Sentry is optimistic;
// otherwise it is an AccessError, same as an explicit denial.
func (s *Sentry) Authorize(_ context.Context, subject *Subject, action string) error {
	perm, ok := s.permissions.GetPermission(action)
	if !ok {
		if s.optimistic {
			return nil
		}
		return rterrors.NewAccessError("no permission declared for action " + action)
	}
	if !perm.Authorize(subject) {
		return rterrors.NewAccessError("subject does not satisfy permission for action " + action)
	}
	return nil
}
