package property

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/faasrt/core/pkg/rterrors"
)

// CachedProperty is the on-the-wire shape of a cached entry's control
// block: the raw value alongside the bookkeeping needed to decide when it
// expires (spec §4.1). NoCache disables storage entirely (the cache acts
// as a pass-through for that key); NoExpire pins the entry so it never
// expires once cached.
type CachedProperty struct {
	Value      string    `json:"value"`
	LastUpdate time.Time `json:"lastUpdated"`
	Expires    time.Time `json:"expires"`
	NoCache    bool      `json:"noCache"`
	NoExpire   bool      `json:"noExpire"`
}

func (c *CachedProperty) expired(now time.Time) bool {
	if c.NoExpire {
		return false
	}
	return !now.Before(c.Expires)
}

// unit is the duration unit a control block's "ttl" is expressed in.
type unit string

const (
	unitSeconds unit = "seconds"
	unitMinutes unit = "minutes"
	unitHours   unit = "hours"
)

func (u unit) duration(ttl int) time.Duration {
	switch u {
	case unitMinutes:
		return time.Duration(ttl) * time.Minute
	case unitHours:
		return time.Duration(ttl) * time.Hour
	default:
		return time.Duration(ttl) * time.Second
	}
}

// control is one entry of a CacheControlConfig's "controls" array: a
// per-key override of the manager-wide ttl/unit/noCache/noExpire.
type control struct {
	Key      string `json:"key"`
	TTL      *int   `json:"ttl"`
	Unit     *unit  `json:"unit"`
	NoCache  *bool  `json:"noCache"`
	NoExpire *bool  `json:"noExpire"`
}

// CacheControlConfig is the JSON control block shape from spec §4.1:
//
//	{ "active": bool, "ttl": int, "unit": "seconds"|"minutes"|"hours",
//	  "controls": [ {"key": str, "ttl": int?, "unit": str?,
//	                 "noCache": bool?, "noExpire": bool?} ] }
type CacheControlConfig struct {
	Active   bool      `json:"active"`
	TTL      int       `json:"ttl"`
	Unit     unit      `json:"unit"`
	Controls []control `json:"controls"`
}

// ParseCacheControlConfig decodes a control block from raw JSON.
func ParseCacheControlConfig(raw []byte) (*CacheControlConfig, error) {
	var cfg CacheControlConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, rterrors.NewConfigurationError("cache control block is not valid json", rterrors.WithCause(err))
	}
	if cfg.Unit == "" {
		cfg.Unit = unitSeconds
	}
	return &cfg, nil
}

// resolved is the effective per-key cache policy after applying a
// control's overrides on top of the config-wide defaults.
type resolved struct {
	ttl      time.Duration
	noCache  bool
	noExpire bool
}

func (cfg *CacheControlConfig) resolve(key string) resolved {
	r := resolved{ttl: cfg.Unit.duration(cfg.TTL)}
	for _, c := range cfg.Controls {
		if c.Key != key {
			continue
		}
		if c.TTL != nil {
			u := cfg.Unit
			if c.Unit != nil {
				u = *c.Unit
			}
			r.ttl = u.duration(*c.TTL)
		} else if c.Unit != nil {
			r.ttl = (*c.Unit).duration(cfg.TTL)
		}
		if c.NoCache != nil {
			r.noCache = *c.NoCache
		}
		if c.NoExpire != nil {
			r.noExpire = *c.NoExpire
		}
		break
	}
	return r
}

// CacheStore is the seam CachedPropertyManager caches through. A nil,nil
// return means a clean miss.
type CacheStore interface {
	Get(ctx context.Context, key string) (*CachedProperty, error)
	Set(ctx context.Context, key string, value *CachedProperty) error
}

// localCacheStore is the default in-process CacheStore, a single map
// guarded by a mutex. It does not share state across OS processes; use
// RedisCacheStore for that.
type localCacheStore struct {
	mu      sync.RWMutex
	entries map[string]*CachedProperty
}

// NewLocalCacheStore returns the default process-local CacheStore.
func NewLocalCacheStore() CacheStore {
	return &localCacheStore{entries: make(map[string]*CachedProperty)}
}

func (s *localCacheStore) Get(_ context.Context, key string) (*CachedProperty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key], nil
}

func (s *localCacheStore) Set(_ context.Context, key string, value *CachedProperty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	return nil
}

// cachedSource wraps any Source (typically an AppConfigPropertyManager's
// Source half) with a TTL cache, coalescing concurrent misses on the same
// key through a singleflight group so a burst of requests for an
// about-to-expire key triggers exactly one upstream Lookup.
type cachedSource struct {
	upstream Source
	store    CacheStore
	ttl      time.Duration
	control  *CacheControlConfig
	clock    func() time.Time
	sf       singleflight.Group
}

// CacheOption configures a CachedPropertyManager at construction.
type CacheOption func(*cachedSource)

// WithCacheStore overrides the CacheStore backing (default: process-local).
func WithCacheStore(store CacheStore) CacheOption {
	return func(c *cachedSource) { c.store = store }
}

// WithCacheClock overrides the clock for deterministic tests.
func WithCacheClock(clock func() time.Time) CacheOption {
	return func(c *cachedSource) { c.clock = clock }
}

// WithCacheControl installs a per-key control block (spec §4.1): when
// cfg.Active is false the cache is bypassed entirely, and each key's
// ttl/unit/noCache/noExpire come from the matching "controls" entry,
// falling back to cfg's own ttl/unit.
func WithCacheControl(cfg *CacheControlConfig) CacheOption {
	return func(c *cachedSource) { c.control = cfg }
}

// NewCachedPropertyManager wraps upstream with a TTL cache. A ttl of zero
// disables caching (every Lookup passes through) unless a WithCacheControl
// option supplies per-key overrides.
func NewCachedPropertyManager(upstream Source, ttl time.Duration, opts ...CacheOption) *Manager {
	cs := &cachedSource{
		upstream: upstream,
		store:    NewLocalCacheStore(),
		ttl:      ttl,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(cs)
	}
	return NewManager(cs)
}

// policyFor returns the effective ttl/noCache/noExpire for key, applying
// the control block's per-key override over the manager-wide default.
func (c *cachedSource) policyFor(key string) resolved {
	if c.control == nil {
		return resolved{ttl: c.ttl}
	}
	if !c.control.Active {
		return resolved{noCache: true}
	}
	return c.control.resolve(key)
}

// Lookup implements Source.
func (c *cachedSource) Lookup(ctx context.Context, key string) (*string, error) {
	policy := c.policyFor(key)
	if policy.noCache || (policy.ttl <= 0 && !policy.noExpire) {
		return c.upstream.Lookup(ctx, key)
	}

	cached, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, rterrors.NewTransientError("cache store get failed", rterrors.WithTag(key), rterrors.WithCause(err))
	}
	if cached != nil && !cached.expired(c.clock()) {
		return &cached.Value, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		cached, cerr := c.store.Get(ctx, key)
		if cerr == nil && cached != nil && !cached.expired(c.clock()) {
			return cached, nil
		}

		raw, uerr := c.upstream.Lookup(ctx, key)
		if uerr != nil {
			return nil, uerr
		}
		if raw == nil {
			return (*CachedProperty)(nil), nil
		}

		now := c.clock()
		entry := &CachedProperty{
			Value:      *raw,
			LastUpdate: now,
			Expires:    now.Add(policy.ttl),
			NoExpire:   policy.noExpire,
		}
		if serr := c.store.Set(ctx, key, entry); serr != nil {
			return nil, rterrors.NewTransientError("cache store set failed", rterrors.WithTag(key), rterrors.WithCause(serr))
		}
		return entry, nil
	})
	if err != nil {
		return nil, err
	}

	entry, _ := v.(*CachedProperty)
	if entry == nil {
		return nil, nil
	}
	return &entry.Value, nil
}

func marshalCachedProperty(c *CachedProperty) ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal cached property: %w", err)
	}
	return b, nil
}

func unmarshalCachedProperty(b []byte) (*CachedProperty, error) {
	var c CachedProperty
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cached property: %w", err)
	}
	return &c, nil
}
