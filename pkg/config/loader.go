package config

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/faasrt/core/pkg/property"
	"github.com/faasrt/core/pkg/resource"
	"github.com/faasrt/core/pkg/rterrors"
	"github.com/faasrt/core/pkg/sentry"
)

// document mirrors the recognized top-level keys of a configuration
// document (spec §6): name, permissions, resources, roleFactory,
// authenticators, addOns.
type document struct {
	Name           string            `json:"name"`
	Permissions    []json.RawMessage `json:"permissions"`
	Resources      []json.RawMessage `json:"resources"`
	RoleFactory    json.RawMessage   `json:"roleFactory"`
	Authenticators []json.RawMessage `json:"authenticators"`
	AddOns         []json.RawMessage `json:"addOns"`
}

// ParsedDocument is a configuration document after the AttributeParser
// walk: every attribute subtree has become its concrete Go type.
type ParsedDocument struct {
	Name           string
	Permissions    []*sentry.Permission
	Resources      []resource.ResourceAuthorization
	RoleFactory    sentry.RoleFactory
	Authenticators []sentry.Authenticator
	AddOnRefs      []AddOnRef
}

// ConfigurationLoader reads a configuration document through a
// PropertyManager, validates its structural schema, and walks it through
// the AttributeRegistry to produce a ParsedDocument.
type ConfigurationLoader struct {
	properties property.PropertyManager
	registry   *AttributeRegistry
}

// NewConfigurationLoader builds a loader over properties. Callers may
// Register additional AttributeParsers on the returned loader's registry
// before calling Load.
func NewConfigurationLoader(properties property.PropertyManager) *ConfigurationLoader {
	l := &ConfigurationLoader{properties: properties}

	resolver := func(ctx context.Context, key string) (string, error) {
		val, err := properties.GetProperty(ctx, key, nil)
		if err != nil {
			return "", err
		}
		if val == nil {
			return "", rterrors.NewConfigurationError(
				fmt.Sprintf("property reference ${%s} resolved to no value", key), rterrors.WithTag(key))
		}
		return *val, nil
	}

	l.registry = NewAttributeRegistry(resolver)
	l.registry.Register(PermissionAttributeParser{})
	l.registry.Register(ManagedIdentityAttributeParser{})
	l.registry.Register(AppRegistrationAttributeParser{})
	l.registry.Register(WorkloadIdentityAttributeParser{})
	l.registry.Register(JWTAuthenticatorAttributeParser{})
	l.registry.Register(AddOnRefAttributeParser{})
	l.registry.Register(PrincipalMappingAttributeParser{})
	return l
}

// Registry exposes the loader's AttributeRegistry so a host can register
// additional attribute kinds before Load runs.
func (l *ConfigurationLoader) Registry() *AttributeRegistry { return l.registry }

// Load reads the configuration document stored under propertyKey,
// validates it, and parses it into a ParsedDocument.
func (l *ConfigurationLoader) Load(ctx context.Context, propertyKey string) (*ParsedDocument, []byte, error) {
	raw, err := l.properties.GetProperty(ctx, propertyKey, nil)
	if err != nil {
		return nil, nil, err
	}
	if raw == nil {
		return nil, nil, rterrors.NewConfigurationError(
			fmt.Sprintf("no configuration document found at property %q", propertyKey), rterrors.WithTag(propertyKey))
	}
	rawBytes := []byte(*raw)

	if err := ValidateDocument(rawBytes); err != nil {
		return nil, nil, err
	}

	var doc document
	if err := json.Unmarshal(rawBytes, &doc); err != nil {
		return nil, nil, rterrors.NewConfigurationError("configuration document failed to decode", rterrors.WithCause(err))
	}

	parsed := &ParsedDocument{Name: doc.Name}

	for _, raw := range doc.Permissions {
		obj, err := l.registry.ParseRaw(ctx, raw)
		if err != nil {
			return nil, nil, err
		}
		perm, ok := obj.(*sentry.Permission)
		if !ok {
			return nil, nil, rterrors.NewConfigurationError("permissions entry did not parse to a Permission")
		}
		parsed.Permissions = append(parsed.Permissions, perm)
	}

	for _, raw := range doc.Resources {
		obj, err := l.registry.ParseRaw(ctx, raw)
		if err != nil {
			return nil, nil, err
		}
		auth, ok := obj.(resource.ResourceAuthorization)
		if !ok {
			return nil, nil, rterrors.NewConfigurationError("resources entry did not parse to a ResourceAuthorization")
		}
		parsed.Resources = append(parsed.Resources, auth)
	}

	if len(doc.RoleFactory) > 0 {
		obj, err := l.registry.ParseRaw(ctx, doc.RoleFactory)
		if err != nil {
			return nil, nil, err
		}
		rf, ok := obj.(sentry.RoleFactory)
		if !ok {
			return nil, nil, rterrors.NewConfigurationError("roleFactory entry did not parse to a RoleFactory")
		}
		parsed.RoleFactory = rf
	}

	for _, raw := range doc.Authenticators {
		obj, err := l.registry.ParseRaw(ctx, raw)
		if err != nil {
			return nil, nil, err
		}
		auth, ok := obj.(sentry.Authenticator)
		if !ok {
			return nil, nil, rterrors.NewConfigurationError("authenticators entry did not parse to an Authenticator")
		}
		parsed.Authenticators = append(parsed.Authenticators, auth)
	}

	for _, raw := range doc.AddOns {
		obj, err := l.registry.ParseRaw(ctx, raw)
		if err != nil {
			return nil, nil, err
		}
		ref, ok := obj.(AddOnRef)
		if !ok {
			return nil, nil, rterrors.NewConfigurationError("addOns entry did not parse to an AddOnRef")
		}
		parsed.AddOnRefs = append(parsed.AddOnRefs, ref)
	}

	return parsed, rawBytes, nil
}
