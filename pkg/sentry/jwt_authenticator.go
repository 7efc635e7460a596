package sentry

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuthenticator validates a bearer token carried in a named binding
// (typically the "authorization" header binding the host envelope
// exposes) and asserts the roles listed in its claims.
type JWTAuthenticator struct {
	name        string
	required    bool
	bindingName string
	rolesClaim  string
	keyFunc     jwt.Keyfunc
	parserOpts  []jwt.ParserOption
}

// NewJWTAuthenticator builds a JWTAuthenticator. keyFunc resolves the
// signing key the way golang-jwt expects; rolesClaim names the claim
// (expected to be a []any of strings) this authenticator turns into role
// assignments.
func NewJWTAuthenticator(name, bindingName, rolesClaim string, required bool, keyFunc jwt.Keyfunc, parserOpts ...jwt.ParserOption) *JWTAuthenticator {
	return &JWTAuthenticator{
		name:        name,
		required:    required,
		bindingName: bindingName,
		rolesClaim:  rolesClaim,
		keyFunc:     keyFunc,
		parserOpts:  parserOpts,
	}
}

func (j *JWTAuthenticator) Name() string   { return j.name }
func (j *JWTAuthenticator) Required() bool { return j.required }

// Authenticate extracts a bearer token, validates it, and asserts the
// claimed roles. A missing binding or an invalid token records a false
// assertion rather than returning an error directly — the Sentry decides
// whether that is fatal based on Required().
func (j *JWTAuthenticator) Authenticate(_ context.Context, info RequestInfo, asserter *Asserter) error {
	raw, ok := info.Binding(j.bindingName)
	if !ok {
		return asserter.Assert(j.name, false, nil, "no bearer token present")
	}
	header, ok := raw.(string)
	if !ok {
		return asserter.Assert(j.name, false, nil, "bearer binding was not a string")
	}

	tokenStr := strings.TrimPrefix(header, "Bearer ")
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return asserter.Assert(j.name, false, nil, "empty bearer token")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, j.keyFunc, j.parserOpts...)
	if err != nil || !token.Valid {
		return asserter.Assert(j.name, false, nil, "token validation failed")
	}

	var roles []string
	if raw, ok := claims[j.rolesClaim]; ok {
		switch v := raw.(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					roles = append(roles, s)
				}
			}
		case string:
			roles = append(roles, v)
		}
	}

	if err := asserter.Assert(j.name, true, roles, "jwt validated"); err != nil {
		return err
	}
	return nil
}

// ParseRolesClaim is a small helper for RoleFactory implementations that
// want the same []any-of-strings convention this authenticator uses.
func ParseRolesClaim(claims jwt.MapClaims, key string) []string {
	raw, ok := claims[key]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

var _ Authenticator = (*JWTAuthenticator)(nil)
