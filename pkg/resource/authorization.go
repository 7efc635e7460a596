package resource

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/faasrt/core/pkg/rterrors"
)

// ResourceAuthorization acquires and caches bearer tokens scoped to a
// resource. Implementations differ only in how they resolve a fresh
// token; caching, skew, and the single-flight refresh guarantee are
// shared.
type ResourceAuthorization interface {
	ID() string
	GetToken(ctx context.Context, resource string) (string, error)
}

// resolveFunc fetches a brand-new token for resource from the upstream
// identity provider.
type resolveFunc func(ctx context.Context, resource string) (*Token, error)

// Authorization is the shared caching/refresh engine every concrete
// ResourceAuthorization variant is built on. At most one resolve is ever
// in flight per (Authorization, resource): concurrent callers on a miss
// or expired entry coalesce onto the same singleflight call and observe
// the same token.
type Authorization struct {
	id      string
	mu      sync.RWMutex
	tokens  map[string]*Token
	skew    time.Duration
	limiter *rate.Limiter
	resolve resolveFunc
	sf      singleflight.Group
	clock   func() time.Time
}

func newAuthorization(id string, skew time.Duration, limiter *rate.Limiter, resolve resolveFunc) *Authorization {
	if skew > 0 {
		skew = -skew
	}
	return &Authorization{
		id:      id,
		tokens:  make(map[string]*Token),
		skew:    skew,
		limiter: limiter,
		resolve: resolve,
		clock:   time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (a *Authorization) WithClock(clock func() time.Time) *Authorization {
	a.clock = clock
	return a
}

func (a *Authorization) ID() string { return a.id }

// needsRefresh reports whether tok is missing or due for refresh:
// now >= expires + skew (skew is non-positive, so this fires slightly
// before the token's real expiry).
func (a *Authorization) needsRefresh(tok *Token, now time.Time) bool {
	if tok == nil {
		return true
	}
	return !now.Before(tok.Expires.Add(a.skew))
}

// GetToken returns a cached, unexpired token for resource, refreshing it
// through the single-flight group when missing or due.
func (a *Authorization) GetToken(ctx context.Context, resource string) (string, error) {
	a.mu.RLock()
	tok := a.tokens[resource]
	stale := a.needsRefresh(tok, a.clock())
	a.mu.RUnlock()

	if !stale {
		return tok.Value, nil
	}

	v, err, _ := a.sf.Do(resource, func() (any, error) {
		a.mu.RLock()
		tok := a.tokens[resource]
		fresh := !a.needsRefresh(tok, a.clock())
		a.mu.RUnlock()
		if fresh {
			return tok, nil
		}

		if a.limiter != nil {
			if werr := a.limiter.Wait(ctx); werr != nil {
				return nil, rterrors.NewTransientError(
					"resource authorization rate limiter wait failed", rterrors.WithCause(werr))
			}
		}

		newTok, rerr := a.resolve(ctx, resource)
		if rerr != nil {
			return nil, rerr
		}

		a.mu.Lock()
		a.tokens[resource] = newTok
		a.mu.Unlock()
		return newTok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(*Token).Value, nil
}
