package sentry

import (
	"strings"
	"sync"

	"github.com/faasrt/core/pkg/rterrors"
)

// assertion is one recorded authentication result.
type assertion struct {
	result      bool
	assignments []string
	remarks     string
}

// Asserter is the request-scoped ledger Authenticators record their
// results into. hasAffirmativeAssertion() drives whether authentication
// as a whole succeeded; assign(subject) unions every assertion's role
// assignments into the subject exactly once.
type Asserter struct {
	mu         sync.Mutex
	assertions map[string]*assertion
	assigned   bool
}

// NewAsserter returns an empty Asserter.
func NewAsserter() *Asserter {
	return &Asserter{assertions: make(map[string]*assertion)}
}

// Assert records the outcome of one Authenticator under name. An empty
// or whitespace-only name is a ValidationError.
func (a *Asserter) Assert(name string, result bool, assignments []string, remarks string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return rterrors.NewValidationError("asserter name must not be empty", rterrors.WithTag("name"))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.assertions[trimmed] = &assertion{result: result, assignments: assignments, remarks: remarks}
	return nil
}

// HasAffirmativeAssertion reports whether any recorded assertion is true.
func (a *Asserter) HasAffirmativeAssertion() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range a.assertions {
		if rec.result {
			return true
		}
	}
	return false
}

// Assign unions every recorded assertion's role assignments into subject.
// Idempotent: repeated calls never duplicate roles, since Subject.AddRoles
// is itself a set union.
func (a *Asserter) Assign(subject *Subject) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range a.assertions {
		subject.AddRoles(rec.assignments...)
	}
	a.assigned = true
}
