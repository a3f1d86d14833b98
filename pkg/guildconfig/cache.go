package guildconfig

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultCacheTTL bounds how long a replica can serve a configuration
	// read that another replica has since changed. Mutations through this
	// instance invalidate immediately; the TTL covers everyone else.
	DefaultCacheTTL = 30 * time.Second

	// DefaultCacheSize is the maximum number of guild entries held
	// in-process.
	DefaultCacheSize = 10000
)

// CachedService wraps a Service with an in-process read-through cache.
// Only found records are cached; absence always goes to the store so a
// fresh setup becomes visible immediately.
type CachedService struct {
	store Service
	cache *lru.LRU[string, *Config]
}

// CacheOption configures a CachedService.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	ttl  time.Duration
	size int
}

// WithCacheTTL overrides the entry TTL.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(o *cacheOptions) { o.ttl = ttl }
}

// WithCacheSize overrides the maximum entry count.
func WithCacheSize(size int) CacheOption {
	return func(o *cacheOptions) { o.size = size }
}

// NewCachedService wraps store with a read-through cache.
func NewCachedService(store Service, opts ...CacheOption) *CachedService {
	o := cacheOptions{ttl: DefaultCacheTTL, size: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}

	return &CachedService{
		store: store,
		cache: lru.NewLRU[string, *Config](o.size, nil, o.ttl),
	}
}

// Get returns the cached configuration when fresh, reading through to the
// store otherwise.
func (c *CachedService) Get(ctx context.Context, guildID string) (*Config, error) {
	if cfg, ok := c.cache.Get(guildID); ok {
		return cfg, nil
	}

	cfg, err := c.store.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		c.cache.Add(guildID, cfg)
	}
	return cfg, nil
}

// Create stores a new record and invalidates the guild's cache entry.
func (c *CachedService) Create(ctx context.Context, guildID string, mode AccessMode, requiredRoleIDs []string, modifiedBy string) (*Config, error) {
	cfg, err := c.store.Create(ctx, guildID, mode, requiredRoleIDs, modifiedBy)
	if err != nil {
		return nil, err
	}
	c.cache.Remove(guildID)
	return cfg, nil
}

// Update applies a partial update and invalidates the guild's cache entry.
// Invalidation is scoped to the mutated guild only.
func (c *CachedService) Update(ctx context.Context, guildID string, update Update, modifiedBy string) (*Config, error) {
	cfg, err := c.store.Update(ctx, guildID, update, modifiedBy)
	if err != nil {
		return nil, err
	}
	c.cache.Remove(guildID)
	return cfg, nil
}

// Exists reports whether the guild has a record, preferring the cache.
func (c *CachedService) Exists(ctx context.Context, guildID string) (bool, error) {
	if _, ok := c.cache.Get(guildID); ok {
		return true, nil
	}
	return c.store.Exists(ctx, guildID)
}

// Invalidate drops the guild's cache entry without touching the store.
func (c *CachedService) Invalidate(guildID string) {
	c.cache.Remove(guildID)
}
