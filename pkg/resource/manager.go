package resource

import (
	"context"
	"os"
	"sync"

	"github.com/faasrt/core/pkg/rterrors"
)

const defaultManagedIdentityID = "system"

// Manager is the registry of ResourceAuthorizations keyed by id.
type Manager struct {
	mu        sync.RWMutex
	resources map[string]ResourceAuthorization
	defaultID string
}

// NewManager returns an empty registry. If the host exposes
// IDENTITY_ENDPOINT/IDENTITY_HEADER, a default system ManagedIdentity is
// registered under defaultManagedIdentityID; otherwise there is no
// default.
func NewManager() *Manager {
	m := &Manager{resources: make(map[string]ResourceAuthorization)}

	endpoint := os.Getenv("IDENTITY_ENDPOINT")
	header := os.Getenv("IDENTITY_HEADER")
	if endpoint != "" {
		mi := NewManagedIdentity(defaultManagedIdentityID, endpoint, header, "", 0)
		m.resources[defaultManagedIdentityID] = mi
		m.defaultID = defaultManagedIdentityID
	}

	return m
}

// AddResource registers a ResourceAuthorization under its own id.
func (m *Manager) AddResource(auth ResourceAuthorization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[auth.ID()] = auth
}

// GetResource returns the authorization registered under id. An empty id
// means the default managed identity, if one was registered.
func (m *Manager) GetResource(id string) ResourceAuthorization {
	if id == "" {
		id = m.defaultID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resources[id]
}

// GetToken resolves a bearer token for resource using the authorization
// registered under id (empty means the default).
func (m *Manager) GetToken(ctx context.Context, resource, id string) (string, error) {
	auth := m.GetResource(id)
	if auth == nil {
		return "", rterrors.NewConfigurationError("no resource authorization registered for id " + id)
	}
	return auth.GetToken(ctx, resource)
}

// Credential adapts a named ResourceAuthorization to the getToken(scopes)
// shape downstream SDKs commonly expect.
type Credential struct {
	manager *Manager
	id      string
}

// GetTokenCredential returns a credential object whose GetToken method
// downstream SDKs can call directly.
func (m *Manager) GetTokenCredential(id string) *Credential {
	return &Credential{manager: m, id: id}
}

// GetToken resolves a token for the first scope in scopes (SDKs that pass
// multiple scopes expect the credential to pick the primary resource).
func (c *Credential) GetToken(ctx context.Context, scopes []string) (string, error) {
	if len(scopes) == 0 {
		return "", rterrors.NewValidationError("GetToken requires at least one scope", rterrors.WithTag("scopes"))
	}
	return c.manager.GetToken(ctx, scopes[0], c.id)
}
