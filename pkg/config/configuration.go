// Package config owns the runtime's singleton collaborators: the
// property manager, resource manager, permission manager, role factory,
// sentry, and add-on manager a Configuration document assembles, plus the
// document loader and attribute-parsing machinery that builds them.
package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/gowebpki/jcs"

	"github.com/faasrt/core/pkg/addon"
	"github.com/faasrt/core/pkg/property"
	"github.com/faasrt/core/pkg/resource"
	"github.com/faasrt/core/pkg/rterrors"
	"github.com/faasrt/core/pkg/sentry"
)

// AddOnFactory constructs a fresh AddOn instance for a given name, for
// hosts that register business-logic add-ons under a factory key an
// AddOn attribute in the document can reference.
type AddOnFactory func() addon.AddOn

// refAddOn overrides Name/Dependencies from the document's AddOnRef while
// delegating every other AddOn method to the factory-built instance.
type refAddOn struct {
	addon.AddOn
	name string
	deps []string
}

func (r *refAddOn) Name() string           { return r.name }
func (r *refAddOn) Dependencies() []string { return r.deps }

// Configuration owns every singleton collaborator the runtime needs and
// drives the one-shot initialize/bootstrapped sequence. It is built once
// per process and shared read-only across invocations after Bootstrapped
// returns (spec §5).
type Configuration struct {
	Name string

	PropertyManager   property.PropertyManager
	ResourceManager   *resource.Manager
	PermissionManager *sentry.MapPermissionManager
	RoleFactory       sentry.RoleFactory
	Sentry            *sentry.Sentry
	AddOnManager      *addon.Manager
	Optimistic        bool

	addOnFactories map[string]AddOnFactory

	mu          sync.Mutex
	initOnce    sync.Once
	initErr     error
	bootOnce    sync.Once
	bootErr     error
	initialized bool
	docHash     string
}

// New builds an un-initialized Configuration over a property source.
// Register AddOnFactories with RegisterAddOnFactory before Initialize.
func New(properties property.PropertyManager, optimistic bool) *Configuration {
	return &Configuration{
		PropertyManager:   properties,
		ResourceManager:   resource.NewManager(),
		PermissionManager: sentry.NewMapPermissionManager(),
		RoleFactory:       sentry.NoopRoleFactory{},
		Optimistic:        optimistic,
		AddOnManager:      addon.NewManager(),
		addOnFactories:    make(map[string]AddOnFactory),
	}
}

// RegisterAddOnFactory makes key resolvable from an AddOnRef attribute in
// the configuration document.
func (c *Configuration) RegisterAddOnFactory(key string, factory AddOnFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addOnFactories[key] = factory
}

func canonicalHash(raw []byte) (string, error) {
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize configuration document: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Initialize loads and parses the configuration document stored under
// propertyKey, exactly once. A later call with a byte-identical document
// (per its JSON Canonicalization Scheme hash) is a observable no-op; a
// later call with a materially different document fails, since a
// Configuration's identity is fixed at first initialize.
func (c *Configuration) Initialize(ctx context.Context, propertyKey string) error {
	loader := NewConfigurationLoader(c.PropertyManager)

	c.mu.Lock()
	alreadyInit := c.initialized
	c.mu.Unlock()

	if alreadyInit {
		_, raw, err := loader.Load(ctx, propertyKey)
		if err != nil {
			return err
		}
		hash, err := canonicalHash(raw)
		if err != nil {
			return rterrors.NewConfigurationError("failed to hash configuration document", rterrors.WithCause(err))
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if hash != c.docHash {
			return rterrors.NewConfigurationError("configuration already initialized with a different document")
		}
		return nil
	}

	c.initOnce.Do(func() {
		parsed, raw, err := loader.Load(ctx, propertyKey)
		if err != nil {
			c.initErr = err
			return
		}

		hash, err := canonicalHash(raw)
		if err != nil {
			c.initErr = rterrors.NewConfigurationError("failed to hash configuration document", rterrors.WithCause(err))
			return
		}

		if parsed.Name == "" {
			c.initErr = rterrors.NewConfigurationError("configuration document name must not be empty")
			return
		}

		for _, perm := range parsed.Permissions {
			c.PermissionManager.Add(perm)
		}
		for _, auth := range parsed.Resources {
			c.ResourceManager.AddResource(auth)
		}
		if parsed.RoleFactory != nil {
			c.RoleFactory = parsed.RoleFactory
		}
		for _, ref := range parsed.AddOnRefs {
			factory, ok := c.addOnFactories[ref.FactoryKey]
			if !ok {
				c.initErr = rterrors.NewConfigurationError(
					fmt.Sprintf("no add-on factory registered for %q", ref.FactoryKey))
				return
			}
			instance := factory()
			deps := ref.Deps
			if deps == nil {
				deps = instance.Dependencies()
			}
			if addErr := c.AddOnManager.Add(&refAddOn{AddOn: instance, name: ref.Name, deps: deps}); addErr != nil {
				c.initErr = addErr
				return
			}
		}

		c.Sentry = sentry.New(parsed.Authenticators, c.RoleFactory, c.PermissionManager, c.Optimistic)

		c.mu.Lock()
		c.Name = parsed.Name
		c.docHash = hash
		c.initialized = true
		c.mu.Unlock()
	})
	return c.initErr
}

// Bootstrapped installs every configured add-on exactly once, idempotent
// under re-entry. Must run after Initialize.
func (c *Configuration) Bootstrapped(ctx context.Context, envelope any) error {
	c.mu.Lock()
	initialized := c.initialized
	c.mu.Unlock()
	if !initialized {
		return rterrors.NewConfigurationError("configuration must be initialized before bootstrapping")
	}

	c.bootOnce.Do(func() {
		c.bootErr = c.AddOnManager.Install(ctx, envelope)
	})
	return c.bootErr
}

// Ready reports whether Initialize has completed successfully.
func (c *Configuration) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized && c.initErr == nil
}
