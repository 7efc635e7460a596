package config

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/faasrt/core/pkg/resource"
	"github.com/faasrt/core/pkg/rterrors"
	"github.com/faasrt/core/pkg/sentry"
)

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func durationMsField(m map[string]any, key string) time.Duration {
	v, ok := m[key].(float64)
	if !ok || v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Millisecond
}

// PermissionAttributeParser parses "Permission" attributes: {action,
// roles, match: {type: "MatchAny"|"MatchAll"|"MatchNone"}}.
type PermissionAttributeParser struct{}

func (PermissionAttributeParser) Kind() string { return "Permission" }

func (PermissionAttributeParser) Parse(_ context.Context, attr map[string]any) (any, error) {
	action, _ := stringField(attr, "action")
	roles := stringSliceField(attr, "roles")

	matchSpec, _ := attr["match"].(map[string]any)
	matchType, _ := stringField(matchSpec, "type")

	var match sentry.ValueMatch
	switch matchType {
	case "MatchAny":
		match = sentry.MatchAny{}
	case "MatchAll":
		match = sentry.MatchAll{}
	case "MatchNone":
		match = sentry.MatchNone{}
	default:
		return nil, rterrors.NewConfigurationError(fmt.Sprintf("permission has an unrecognized match type %q", matchType))
	}

	return sentry.NewPermission(action, roles, match)
}

// ManagedIdentityAttributeParser parses "ManagedIdentity" resource
// attributes.
type ManagedIdentityAttributeParser struct{}

func (ManagedIdentityAttributeParser) Kind() string { return "ManagedIdentity" }

func (ManagedIdentityAttributeParser) Parse(_ context.Context, attr map[string]any) (any, error) {
	id, _ := stringField(attr, "id")
	endpoint, _ := stringField(attr, "endpoint")
	header, _ := stringField(attr, "header")
	principalID, _ := stringField(attr, "principalId")
	timeout := durationMsField(attr, "timeoutMs")
	return resource.NewManagedIdentity(id, endpoint, header, principalID, timeout), nil
}

// AppRegistrationAttributeParser parses "AppRegistration" resource
// attributes.
type AppRegistrationAttributeParser struct{}

func (AppRegistrationAttributeParser) Kind() string { return "AppRegistration" }

func (AppRegistrationAttributeParser) Parse(_ context.Context, attr map[string]any) (any, error) {
	id, _ := stringField(attr, "id")
	authority, _ := stringField(attr, "authority")
	tenant, _ := stringField(attr, "tenant")
	clientID, _ := stringField(attr, "clientId")
	secret, _ := stringField(attr, "secret")
	timeout := durationMsField(attr, "timeoutMs")
	return resource.NewAppRegistration(id, authority, tenant, clientID, secret, timeout), nil
}

// WorkloadIdentityAttributeParser parses "WorkloadIdentity" resource
// attributes.
type WorkloadIdentityAttributeParser struct{}

func (WorkloadIdentityAttributeParser) Kind() string { return "WorkloadIdentity" }

func (WorkloadIdentityAttributeParser) Parse(ctx context.Context, attr map[string]any) (any, error) {
	id, _ := stringField(attr, "id")
	roleARN, _ := stringField(attr, "roleArn")
	sessionPrefix, _ := stringField(attr, "sessionNamePrefix")
	region, _ := stringField(attr, "region")
	tokenFile, _ := stringField(attr, "webIdentityTokenFile")
	return resource.NewWorkloadIdentity(ctx, id, roleARN, sessionPrefix, region, tokenFile)
}

// JWTAuthenticatorAttributeParser parses "JWTAuthenticator" authenticator
// attributes. Keys are taken as a single static HMAC secret; the runtime
// also accepts a directly-constructed *sentry.JWTAuthenticator for hosts
// that need asymmetric or JWKS-backed key resolution.
type JWTAuthenticatorAttributeParser struct{}

func (JWTAuthenticatorAttributeParser) Kind() string { return "JWTAuthenticator" }

func (JWTAuthenticatorAttributeParser) Parse(_ context.Context, attr map[string]any) (any, error) {
	name, _ := stringField(attr, "name")
	binding, _ := stringField(attr, "binding")
	rolesClaim, _ := stringField(attr, "rolesClaim")
	secret, _ := stringField(attr, "secret")
	required, _ := attr["required"].(bool)

	if secret == "" {
		return nil, rterrors.NewConfigurationError("JWTAuthenticator attribute requires a secret")
	}

	keyFunc := func(*jwt.Token) (any, error) { return []byte(secret), nil }
	return sentry.NewJWTAuthenticator(name, binding, rolesClaim, required, keyFunc), nil
}

// AddOnRef is the parsed form of an "AddOn" configuration attribute: a
// lookup key into a host-supplied factory registry, plus the instance
// name/dependency overrides declared in the document.
type AddOnRef struct {
	FactoryKey string
	Name       string
	Deps       []string
}

// AddOnRefAttributeParser parses "AddOn" attributes: {factory, name,
// dependencies}.
type AddOnRefAttributeParser struct{}

func (AddOnRefAttributeParser) Kind() string { return "AddOn" }

func (AddOnRefAttributeParser) Parse(_ context.Context, attr map[string]any) (any, error) {
	factory, _ := stringField(attr, "factory")
	name, _ := stringField(attr, "name")
	if factory == "" {
		return nil, rterrors.NewConfigurationError("AddOn attribute requires a factory key")
	}
	if name == "" {
		name = factory
	}
	return AddOnRef{FactoryKey: factory, Name: name, Deps: stringSliceField(attr, "dependencies")}, nil
}

// PrincipalMappingAttributeParser parses a "PrincipalMapping" roleFactory
// attribute: a claim key plus a table mapping claim values to role sets.
type PrincipalMappingAttributeParser struct{}

func (PrincipalMappingAttributeParser) Kind() string { return "PrincipalMapping" }

func (PrincipalMappingAttributeParser) Parse(_ context.Context, attr map[string]any) (any, error) {
	claimKey, _ := stringField(attr, "claim")
	if claimKey == "" {
		return nil, rterrors.NewConfigurationError("PrincipalMapping attribute requires a claim key")
	}

	rawMappings, _ := attr["mappings"].(map[string]any)
	mappings := make(map[string][]string, len(rawMappings))
	for claimValue, rolesRaw := range rawMappings {
		rolesSlice, ok := rolesRaw.([]any)
		if !ok {
			continue
		}
		roles := make([]string, 0, len(rolesSlice))
		for _, r := range rolesSlice {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
		mappings[claimValue] = roles
	}

	return sentry.NewPrincipalMappingRoleFactory(claimKey, mappings), nil
}
