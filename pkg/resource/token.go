// Package resource implements resource-scoped bearer token acquisition:
// a managed-identity flow, an app-registration client-credentials flow,
// a cloud-neutral workload-identity flow, per-token caching with skew,
// and a registry of named authorizations.
package resource

import "time"

// Token is a bearer credential scoped to one resource URI, with an
// absolute expiry instant.
type Token struct {
	Resource string
	Value    string
	Expires  time.Time
}

// DefaultSkew is the default negative-leading skew: refresh two minutes
// before the token's real expiry.
const DefaultSkew = -120 * time.Second
