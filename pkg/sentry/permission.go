package sentry

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/faasrt/core/pkg/rterrors"
)

var actionCaser = cases.Lower(language.Und)

// Permission is a decision rule for one action: authorize(subject) =
// match.IsMatch(roles, subject.roles).
type Permission struct {
	action string
	roles  map[string]struct{}
	match  ValueMatch
}

// NewPermission builds a Permission. action is lowercased (Unicode-aware)
// and must be non-empty after trimming; an empty/whitespace-only action
// is a ValidationError.
func NewPermission(action string, roles []string, match ValueMatch) (*Permission, error) {
	trimmed := strings.TrimSpace(action)
	if trimmed == "" {
		return nil, rterrors.NewValidationError("permission action must not be empty", rterrors.WithTag("action"))
	}
	if match == nil {
		return nil, rterrors.NewValidationError("permission requires a value match policy", rterrors.WithTag("match"))
	}
	return &Permission{
		action: actionCaser.String(trimmed),
		roles:  NewSet(roles...),
		match:  match,
	}, nil
}

// Action returns the permission's lowercased action name.
func (p *Permission) Action() string { return p.action }

// Authorize reports whether subject's roles satisfy this permission. The
// permission's declared roles are the assertion checked against the
// subject's actual roles as the value set, so MatchAll requires every
// declared role to be present in the subject, not the reverse.
func (p *Permission) Authorize(subject *Subject) bool {
	return p.match.IsMatch(p.roles, subject.RoleSet())
}
