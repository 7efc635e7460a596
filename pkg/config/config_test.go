package config_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faasrt/core/pkg/addon"
	"github.com/faasrt/core/pkg/config"
	"github.com/faasrt/core/pkg/property"
	"github.com/faasrt/core/pkg/sentry"
)

type memorySource map[string]string

func (m memorySource) Lookup(_ context.Context, key string) (*string, error) {
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

const fullDocument = `{
  "name": "orders-function",
  "permissions": [
    {
      "_content": {"type": "application/vnd.celastrinajs.attribute+json;Permission"},
      "action": "process",
      "roles": ["operator"],
      "match": {"type": "MatchAny"}
    }
  ],
  "resources": [
    {
      "_content": {"type": "application/vnd.celastrinajs.attribute+json;ManagedIdentity"},
      "id": "primary",
      "endpoint": "${IDENTITY_ENDPOINT}",
      "header": "secret-header"
    }
  ],
  "authenticators": [
    {
      "_content": {"type": "application/vnd.celastrinajs.attribute+json;JWTAuthenticator"},
      "name": "jwt",
      "binding": "authorization",
      "rolesClaim": "roles",
      "secret": "hmac-secret",
      "required": false
    }
  ],
  "addOns": [
    {
      "_content": {"type": "application/vnd.celastrinajs.attribute+json;AddOn"},
      "factory": "audit",
      "name": "audit-log"
    }
  ]
}`

type stubAddOn struct {
	addon.BaseAddOn
	installed bool
}

func (s *stubAddOn) Install(context.Context, any) error {
	s.installed = true
	return nil
}

// TestConfigurationInitializeParsesFullDocument exercises the loader and
// attribute registry end to end: permissions, resources, an authenticator,
// and a factory-resolved add-on all parse from one document and land on
// the Configuration's collaborators.
func TestConfigurationInitializeParsesFullDocument(t *testing.T) {
	props := property.NewManager(memorySource{
		"CONFIG_DOC":        fullDocument,
		"IDENTITY_ENDPOINT": "https://identity.example.internal",
	})
	cfg := config.New(props, false)

	var instance stubAddOn
	cfg.RegisterAddOnFactory("audit", func() addon.AddOn { return &instance })

	require.NoError(t, cfg.Initialize(context.Background(), "CONFIG_DOC"))
	assert.Equal(t, "orders-function", cfg.Name)
	assert.True(t, cfg.Ready())

	perm, ok := cfg.PermissionManager.GetPermission("process")
	require.True(t, ok)
	assert.Equal(t, "process", perm.Action())

	assert.NotNil(t, cfg.ResourceManager.GetResource("primary"))

	require.NoError(t, cfg.Bootstrapped(context.Background(), nil))
	assert.True(t, instance.installed)

	subject := sentry.NewSubject("req-1")
	subject.AddRoles("operator")
	assert.NoError(t, cfg.Sentry.Authorize(context.Background(), subject, "process"))
}

// TestConfigurationInitializeIsIdempotentForSameDocument covers the
// byte-identical re-initialize no-op path (testable property 6).
func TestConfigurationInitializeIsIdempotentForSameDocument(t *testing.T) {
	props := property.NewManager(memorySource{"CONFIG_DOC": `{"name":"f"}`})
	cfg := config.New(props, true)

	require.NoError(t, cfg.Initialize(context.Background(), "CONFIG_DOC"))
	require.NoError(t, cfg.Initialize(context.Background(), "CONFIG_DOC"))
	assert.Equal(t, "f", cfg.Name)
}

// TestConfigurationInitializeRejectsChangedDocument covers the defect case
// of testable property 6: a later Initialize call with a materially
// different document fails instead of silently swapping identity.
func TestConfigurationInitializeRejectsChangedDocument(t *testing.T) {
	src := memorySource{"CONFIG_DOC": `{"name":"f"}`}
	props := property.NewManager(src)
	cfg := config.New(props, true)

	require.NoError(t, cfg.Initialize(context.Background(), "CONFIG_DOC"))

	src["CONFIG_DOC"] = `{"name":"g"}`
	err := cfg.Initialize(context.Background(), "CONFIG_DOC")
	require.Error(t, err)
}

// TestConfigurationBootstrappedBeforeInitializeFails covers the ordering
// invariant: Bootstrapped requires a prior successful Initialize.
func TestConfigurationBootstrappedBeforeInitializeFails(t *testing.T) {
	props := property.NewManager(memorySource{})
	cfg := config.New(props, true)

	err := cfg.Bootstrapped(context.Background(), nil)
	require.Error(t, err)
}

// TestValidateDocumentRejectsMissingName covers the structural
// pre-validation pass.
func TestValidateDocumentRejectsMissingName(t *testing.T) {
	err := config.ValidateDocument([]byte(`{"permissions": []}`))
	require.Error(t, err)
}

// TestValidateDocumentAcceptsMinimalDocument covers the happy path.
func TestValidateDocumentAcceptsMinimalDocument(t *testing.T) {
	err := config.ValidateDocument([]byte(`{"name": "f"}`))
	require.NoError(t, err)
}
