package sentry

import "context"

// PrincipalMappingRoleFactory adds roles by looking up a single claim on
// the subject and translating its value through a static mapping table.
type PrincipalMappingRoleFactory struct {
	claimKey string
	mappings map[string][]string
}

// NewPrincipalMappingRoleFactory builds a RoleFactory keyed on claimKey.
func NewPrincipalMappingRoleFactory(claimKey string, mappings map[string][]string) *PrincipalMappingRoleFactory {
	return &PrincipalMappingRoleFactory{claimKey: claimKey, mappings: mappings}
}

// GetSubjectRoles implements RoleFactory.
func (p *PrincipalMappingRoleFactory) GetSubjectRoles(_ context.Context, _ RequestInfo, subject *Subject) ([]string, error) {
	raw, ok := subject.Claim(p.claimKey)
	if !ok {
		return nil, nil
	}
	value, ok := raw.(string)
	if !ok {
		return nil, nil
	}
	return p.mappings[value], nil
}

var _ RoleFactory = (*PrincipalMappingRoleFactory)(nil)
