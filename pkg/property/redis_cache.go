package property

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/faasrt/core/pkg/rterrors"
)

// RedisCacheStore is a CacheStore backed by a shared Redis instance, for
// hosts that run several OS worker processes against one function and
// want the property TTL cache shared across all of them rather than kept
// per-process.
type RedisCacheStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCacheStore wraps client with the CacheStore contract. keys are
// namespaced under prefix to share a Redis instance with unrelated data.
func NewRedisCacheStore(client *redis.Client, prefix string) *RedisCacheStore {
	return &RedisCacheStore{client: client, prefix: prefix}
}

func (r *RedisCacheStore) namespaced(key string) string {
	if r.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", r.prefix, key)
}

// Get implements CacheStore.
func (r *RedisCacheStore) Get(ctx context.Context, key string) (*CachedProperty, error) {
	raw, err := r.client.Get(ctx, r.namespaced(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, rterrors.NewTransientError("redis cache get failed", rterrors.WithTag(key), rterrors.WithCause(err))
	}
	entry, perr := unmarshalCachedProperty(raw)
	if perr != nil {
		return nil, rterrors.NewConfigurationError("redis cache entry is malformed", rterrors.WithTag(key), rterrors.WithCause(perr))
	}
	return entry, nil
}

// Set implements CacheStore. The key's Redis TTL mirrors the control
// block's own Expires so a stale entry drops out of Redis on its own even
// if nothing ever looks it up again.
func (r *RedisCacheStore) Set(ctx context.Context, key string, value *CachedProperty) error {
	raw, err := marshalCachedProperty(value)
	if err != nil {
		return rterrors.NewConfigurationError("failed to marshal cache entry", rterrors.WithTag(key), rterrors.WithCause(err))
	}
	ttl := time.Until(value.Expires)
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := r.client.Set(ctx, r.namespaced(key), raw, ttl).Err(); err != nil {
		return rterrors.NewTransientError("redis cache set failed", rterrors.WithTag(key), rterrors.WithCause(err))
	}
	return nil
}
