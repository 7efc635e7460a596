package property_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faasrt/core/pkg/property"
)

type countingSource struct {
	calls atomic.Int64
	value string
}

func (s *countingSource) Lookup(_ context.Context, _ string) (*string, error) {
	s.calls.Add(1)
	v := s.value
	return &v, nil
}

// TestCachedPropertyManagerTTL covers testable property 2: within the
// TTL the backend is not re-queried; once the clock crosses t0+ttl, the
// next lookup re-queries exactly once.
func TestCachedPropertyManagerTTL(t *testing.T) {
	src := &countingSource{value: "v1"}
	now := time.Unix(1_700_000_000, 0)
	clock := &now

	mgr := property.NewCachedPropertyManager(src, 10*time.Second,
		property.WithCacheClock(func() time.Time { return *clock }))

	for i := 0; i < 5; i++ {
		v, err := mgr.GetProperty(context.Background(), "k", nil)
		require.NoError(t, err)
		assert.Equal(t, "v1", *v)
	}
	assert.EqualValues(t, 1, src.calls.Load(), "still within ttl, no re-query")

	*clock = clock.Add(11 * time.Second)
	src.value = "v2"

	v, err := mgr.GetProperty(context.Background(), "k", nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", *v)
	assert.EqualValues(t, 2, src.calls.Load())
}

// TestCachedPropertyManagerCoalescesConcurrentMisses covers the
// single-flight half of testable property 2: N concurrent cache misses
// for the same key issue exactly one backend call.
func TestCachedPropertyManagerCoalescesConcurrentMisses(t *testing.T) {
	src := &countingSource{value: "v1"}
	mgr := property.NewCachedPropertyManager(src, time.Minute)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			v, err := mgr.GetProperty(context.Background(), "k", nil)
			assert.NoError(t, err)
			assert.Equal(t, "v1", *v)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, src.calls.Load())
}

// TestCachedPropertyManagerNoExpireControl exercises the per-key control
// block: a control entry with noExpire=true never re-queries regardless
// of elapsed time.
func TestCachedPropertyManagerNoExpireControl(t *testing.T) {
	src := &countingSource{value: "pinned"}
	now := time.Unix(1_700_000_000, 0)
	clock := &now
	noExpire := true

	cfg := &property.CacheControlConfig{Active: true, TTL: 5, Unit: "seconds"}
	raw := []byte(`{"active": true, "ttl": 5, "unit": "seconds", "controls": [{"key": "pinned-key", "noExpire": true}]}`)
	parsed, err := property.ParseCacheControlConfig(raw)
	require.NoError(t, err)
	_ = noExpire
	_ = cfg

	mgr := property.NewCachedPropertyManager(src, 0,
		property.WithCacheControl(parsed),
		property.WithCacheClock(func() time.Time { return *clock }))

	_, err = mgr.GetProperty(context.Background(), "pinned-key", nil)
	require.NoError(t, err)

	*clock = clock.Add(time.Hour)
	_, err = mgr.GetProperty(context.Background(), "pinned-key", nil)
	require.NoError(t, err)

	assert.EqualValues(t, 1, src.calls.Load())
}

// TestCachedPropertyManagerNoCacheControl exercises a control entry with
// noCache=true: every lookup passes through regardless of ttl.
func TestCachedPropertyManagerNoCacheControl(t *testing.T) {
	src := &countingSource{value: "v"}
	raw := []byte(`{"active": true, "ttl": 60, "unit": "seconds", "controls": [{"key": "hot-key", "noCache": true}]}`)
	parsed, err := property.ParseCacheControlConfig(raw)
	require.NoError(t, err)

	mgr := property.NewCachedPropertyManager(src, 0, property.WithCacheControl(parsed))

	for i := 0; i < 3; i++ {
		_, err := mgr.GetProperty(context.Background(), "hot-key", nil)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, src.calls.Load())
}
