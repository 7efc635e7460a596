package property

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/faasrt/core/pkg/rterrors"
)

const (
	contentTypeFeatureFlag  = "application/vnd.microsoft.appconfig.ff+json"
	contentTypeKeyVaultRef  = "application/vnd.microsoft.appconfig.keyvaultref+json"
	appConfigAPIVersion     = "1.0"
	defaultAppConfigTimeout = 2 * time.Second
)

// TokenSource resolves a bearer token scoped to resource. resource.Manager
// satisfies this structurally, so this package never imports resource and
// stays testable with a small stub type.
type TokenSource interface {
	GetToken(ctx context.Context, resource, id string) (string, error)
}

type appConfigEntry struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	ContentType string `json:"content_type"`
}

type keyVaultRef struct {
	URI string `json:"uri"`
}

type secretBundle struct {
	Value string `json:"value"`
}

// AppConfigPropertyManager resolves keys against a remote key/value store,
// following secret-reference indirection and decoding feature-flag
// payloads transparently. A 404 can optionally fall back to an
// AppSettings-style PropertyManager.
type AppConfigPropertyManager struct {
	store         string
	label         string
	tokens        TokenSource
	identityID    string
	secretTimeout time.Duration
	httpClient    *http.Client
	limiter       *rate.Limiter
	fallback      Source
	baseURL       string
}

// AppConfigOption configures an AppConfigPropertyManager at construction.
type AppConfigOption func(*AppConfigPropertyManager)

// WithFallback sets a Source consulted when the store returns 404.
func WithFallback(src Source) AppConfigOption {
	return func(a *AppConfigPropertyManager) { a.fallback = src }
}

// WithIdentityID sets the resource-authorization id used to acquire
// bearer tokens (empty means the default registered authorization).
func WithIdentityID(id string) AppConfigOption {
	return func(a *AppConfigPropertyManager) { a.identityID = id }
}

// WithBaseURL overrides the store's resolved base URL, e.g. for a
// sovereign-cloud endpoint or a test double; the default is
// https://{store}.azconfig.io.
func WithBaseURL(baseURL string) AppConfigOption {
	return func(a *AppConfigPropertyManager) { a.baseURL = baseURL }
}

// NewAppConfigPropertyManager builds a manager backed by the Azure
// App Configuration REST surface at https://{store}.azconfig.io.
func NewAppConfigPropertyManager(store, label string, tokens TokenSource, opts ...AppConfigOption) *Manager {
	ac := &AppConfigPropertyManager{
		store:         store,
		label:         label,
		tokens:        tokens,
		secretTimeout: defaultAppConfigTimeout,
		httpClient:    &http.Client{Timeout: defaultAppConfigTimeout},
		limiter:       rate.NewLimiter(rate.Limit(20), 40),
	}
	for _, opt := range opts {
		opt(ac)
	}
	return NewManager(ac)
}

func (a *AppConfigPropertyManager) storeResource() string {
	if a.baseURL != "" {
		return a.baseURL
	}
	return fmt.Sprintf("https://%s.azconfig.io", a.store)
}

// Lookup implements Source.
func (a *AppConfigPropertyManager) Lookup(ctx context.Context, key string) (*string, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	entry, err := a.fetchEntry(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		if a.fallback != nil {
			return a.fallback.Lookup(ctx, key)
		}
		return nil, nil
	}

	switch entry.ContentType {
	case contentTypeKeyVaultRef:
		return a.resolveSecretRef(ctx, key, entry.Value)
	default:
		return &entry.Value, nil
	}
}

// LookupFeatureFlag fetches and decodes a feature-flag entry (content type
// application/vnd.microsoft.appconfig.ff+json) into obj via factory.
func (a *AppConfigPropertyManager) LookupFeatureFlag(ctx context.Context, key string, factory ObjectFactory) (any, error) {
	entry, err := a.fetchEntry(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	if entry.ContentType != contentTypeFeatureFlag && entry.ContentType != "" {
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("property %q is not a feature flag (content_type %q)", key, entry.ContentType),
			rterrors.WithTag(key))
	}
	return factory(entry.Value)
}

func (a *AppConfigPropertyManager) fetchEntry(ctx context.Context, key string) (*appConfigEntry, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, rterrors.NewTransientError("app configuration rate limiter wait failed", rterrors.WithCause(err))
		}
	}

	token, err := a.tokens.GetToken(ctx, a.storeResource(), a.identityID)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("api-version", appConfigAPIVersion)
	if a.label != "" {
		q.Set("label", a.label)
	}
	endpoint := fmt.Sprintf("%s/kv/%s?%s", a.storeResource(), url.PathEscape(key), q.Encode())

	ctx, cancel := context.WithTimeout(ctx, defaultAppConfigTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, rterrors.NewConfigurationError("failed to build app configuration request", rterrors.WithCause(err))
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, rterrors.NewTransientError("app configuration store unreachable", rterrors.WithCause(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("app configuration store returned %d for %q: %s", resp.StatusCode, key, string(body)),
			rterrors.WithTag(key))
	}

	var entry appConfigEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("failed to decode app configuration entry %q", key),
			rterrors.WithTag(key), rterrors.WithCause(err))
	}
	return &entry, nil
}

func (a *AppConfigPropertyManager) resolveSecretRef(ctx context.Context, key, raw string) (*string, error) {
	var ref keyVaultRef
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("property %q has a malformed key vault reference", key),
			rterrors.WithTag(key), rterrors.WithCause(err))
	}

	u, err := url.Parse(ref.URI)
	if err != nil {
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("property %q key vault reference has an invalid uri", key),
			rterrors.WithTag(key), rterrors.WithCause(err))
	}
	vaultResource := fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	secretURI := strings.TrimSuffix(ref.URI, "/") + "?api-version=7.1"

	if a.limiter != nil {
		if werr := a.limiter.Wait(ctx); werr != nil {
			return nil, rterrors.NewTransientError("key vault rate limiter wait failed", rterrors.WithCause(werr))
		}
	}

	token, err := a.tokens.GetToken(ctx, vaultResource, a.identityID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.secretTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, secretURI, nil)
	if err != nil {
		return nil, rterrors.NewConfigurationError("failed to build key vault request", rterrors.WithCause(err))
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, rterrors.NewTransientError("key vault unreachable", rterrors.WithCause(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("key vault returned %d for %q: %s", resp.StatusCode, key, string(body)),
			rterrors.WithTag(key))
	}

	var bundle secretBundle
	if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("failed to decode key vault secret for %q", key),
			rterrors.WithTag(key), rterrors.WithCause(err))
	}
	return &bundle.Value, nil
}
