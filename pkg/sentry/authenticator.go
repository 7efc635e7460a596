package sentry

import "context"

// RequestInfo is the minimal slice of a request context an Authenticator
// or RoleFactory needs. rtcontext.Context satisfies this structurally, so
// this package never imports rtcontext.
type RequestInfo interface {
	RequestID() string
	Binding(name string) (any, bool)
}

// Authenticator contributes an authentication assertion for one
// invocation. If Required returns true and Authenticate does not record an
// affirmative assertion, the Sentry fails the whole chain.
type Authenticator interface {
	Name() string
	Required() bool
	Authenticate(ctx context.Context, info RequestInfo, asserter *Asserter) error
}

// RoleFactory produces the additional role set a Subject receives after
// the Authenticator chain runs.
type RoleFactory interface {
	GetSubjectRoles(ctx context.Context, info RequestInfo, subject *Subject) ([]string, error)
}

// NoopRoleFactory adds no roles. Useful as a Sentry default when all roles
// come from Authenticators.
type NoopRoleFactory struct{}

func (NoopRoleFactory) GetSubjectRoles(context.Context, RequestInfo, *Subject) ([]string, error) {
	return nil, nil
}
