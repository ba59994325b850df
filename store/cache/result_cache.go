// Package cache memoizes verification results on go-repository-cache.
//
// Entries hold parsed siteverify responses before constraint evaluation, so a
// replayed token and remote IP within the TTL is re-evaluated without a remote
// call. Transport and parse failures are never stored.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-recaptcha/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const DefaultTTL = 2 * time.Minute

type ResultCache struct {
	cache repositorycache.CacheService
}

func NewResultCache(cacheService repositorycache.CacheService) (*ResultCache, error) {
	if cacheService == nil {
		return nil, fmt.Errorf("cache: cache service is required")
	}
	return &ResultCache{cache: cacheService}, nil
}

// NewMemoryResultCache builds an in-process cache with the given TTL,
// DefaultTTL when ttl is not positive.
func NewMemoryResultCache(ttl time.Duration) (*ResultCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	config := repositorycache.DefaultConfig()
	config.TTL = ttl
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		return nil, fmt.Errorf("cache: new cache service: %w", err)
	}
	return NewResultCache(service)
}

func (c *ResultCache) GetOrVerify(
	ctx context.Context,
	key string,
	verify func(ctx context.Context) (core.Result, error),
) (core.Result, error) {
	if c == nil || c.cache == nil {
		return core.Result{}, fmt.Errorf("cache: result cache is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return core.Result{}, fmt.Errorf("cache: key is required")
	}
	if verify == nil {
		return core.Result{}, fmt.Errorf("cache: verify function is required")
	}
	return repositorycache.GetOrFetch(ctx, c.cache, key, verify)
}

// Forget drops a cached result.
func (c *ResultCache) Forget(ctx context.Context, key string) error {
	if c == nil || c.cache == nil {
		return fmt.Errorf("cache: result cache is not configured")
	}
	return c.cache.Delete(ctx, strings.TrimSpace(key))
}

var _ core.ResultCache = (*ResultCache)(nil)
