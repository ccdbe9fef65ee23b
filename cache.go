package shelfcache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/shelfcache/cachestore"
	"github.com/unkn0wn-root/shelfcache/codec"
)

// cacheLayer is the best-effort side of the repositories. None of its methods
// return an error: failures are logged, reported to hooks and treated as a miss.
type cacheLayer struct {
	store     cachestore.Store
	log       Logger
	hooks     Hooks
	enabled   bool
	entityTTL time.Duration
	searchTTL time.Duration
	timeout   time.Duration
}

func newCacheLayer(opts Options) *cacheLayer {
	return &cacheLayer{
		store:     opts.Cache,
		log:       coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:     coalesce[Hooks](opts.Hooks, NopHooks{}),
		enabled:   opts.Cache != nil && !opts.Disabled,
		entityTTL: coalesce(opts.EntityTTL, DefaultEntityTTL),
		searchTTL: coalesce(opts.SearchTTL, DefaultSearchTTL),
		timeout:   opts.CacheTimeout,
	}
}

func (c *cacheLayer) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return ctx, func() {}
}

// detached is used for writes that follow a committed store mutation: they must run
// even if the caller gave up, otherwise a stale entry would outlive the change.
func (c *cacheLayer) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return c.bound(context.WithoutCancel(ctx))
}

func (c *cacheLayer) fail(op, key string, err error) {
	c.log.Warn("cache "+op+" failed", Fields{"op": op, "key": key, "err": err})
	c.hooks.CacheError(op, key, err)
}

// getCached returns the decoded value under key. Undecodable entries are deleted.
func getCached[V any](ctx context.Context, c *cacheLayer, cd codec.Codec[V], key string) (V, bool) {
	var zero V
	if !c.enabled {
		return zero, false
	}
	cctx, cancel := c.bound(ctx)
	defer cancel()

	raw, ok, err := c.store.Get(cctx, key)
	if err != nil {
		c.fail("get", key, err)
		c.hooks.CacheMiss(key)
		return zero, false
	}
	if !ok {
		c.log.Debug("cache miss", Fields{"key": key})
		c.hooks.CacheMiss(key)
		return zero, false
	}
	v, err := cd.Decode(raw)
	if err != nil {
		c.log.Warn("dropping undecodable cache entry", Fields{"key": key, "err": err})
		if err := c.store.Del(cctx, key); err != nil {
			c.fail("del", key, err)
		}
		c.hooks.SelfHeal(key, "decode")
		c.hooks.CacheMiss(key)
		return zero, false
	}
	c.log.Debug("cache hit", Fields{"key": key})
	c.hooks.CacheHit(key)
	return v, true
}

func setCached[V any](ctx context.Context, c *cacheLayer, cd codec.Codec[V], key string, v V, ttl time.Duration) {
	if !c.enabled {
		return
	}
	payload, err := cd.Encode(v)
	if err != nil {
		// encoding is deterministic; nothing to retry
		c.fail("set", key, err)
		return
	}
	cctx, cancel := c.detached(ctx)
	defer cancel()
	ok, err := c.store.Set(cctx, key, payload, ttl)
	if err != nil {
		c.fail("set", key, err)
		return
	}
	if !ok {
		c.log.Debug("cache set rejected (pressure)", Fields{"key": key})
		c.hooks.SetRejected(key)
	}
}

func (c *cacheLayer) del(ctx context.Context, keys ...string) {
	if !c.enabled || len(keys) == 0 {
		return
	}
	cctx, cancel := c.detached(ctx)
	defer cancel()
	if err := c.store.Del(cctx, keys...); err != nil {
		for _, k := range keys {
			c.fail("del", k, err)
		}
	}
}

func (c *cacheLayer) delPattern(ctx context.Context, patterns ...string) {
	if !c.enabled {
		return
	}
	cctx, cancel := c.detached(ctx)
	defer cancel()
	for _, p := range patterns {
		n, err := c.store.DelPattern(cctx, p)
		if err != nil {
			c.fail("del_pattern", p, err)
			continue
		}
		c.log.Debug("invalidated pattern", Fields{"pattern": p, "removed": n})
		c.hooks.PatternInvalidated(p, n)
	}
}
