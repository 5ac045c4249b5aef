package cacheaside

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/cacheaside/codec"
	"github.com/unkn0wn-root/cacheaside/store"
)

const (
	defaultTTL       = 10 * time.Minute
	defaultScanBatch = int64(100)
)

type cache[V any] struct {
	store      store.Store
	codec      c.Codec[V]
	log        Logger
	hooks      Hooks
	enabled    bool
	defaultTTL time.Duration
	scanBatch  int64
	sf         *singleflight.Group // nil unless Options.SingleFlight
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Store == nil {
		return nil, &ConfigError{Reason: "store is required"}
	}
	if opts.Codec == nil {
		return nil, &ConfigError{Reason: "codec is required"}
	}

	cc := &cache[V]{
		store:   opts.Store,
		codec:   opts.Codec,
		enabled: !opts.Disabled,
	}

	// defaults
	cc.log = coalesce[Logger](opts.Logger, NopLogger{})
	cc.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	cc.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, defaultTTL)
	cc.scanBatch = coalesce[int64](opts.ScanBatch, defaultScanBatch)

	if opts.SingleFlight {
		cc.sf = new(singleflight.Group)
	}
	return cc, nil
}

func (c *cache[V]) Enabled() bool { return c.enabled }

func (c *cache[V]) Close(ctx context.Context) error {
	if c.store != nil {
		return c.store.Close(ctx)
	}
	return nil
}

func (c *cache[V]) Cacheable(ctx context.Context, namespace, key string, loader Loader[V], ttl time.Duration) (V, bool, error) {
	var zero V
	if err := requireFields(namespace, key, loader != nil); err != nil {
		return zero, false, err
	}
	if !c.enabled {
		return loader(ctx)
	}

	ttl = c.effectiveTTL(ttl)
	k := fullKey(namespace, key)

	raw, ok, err := c.store.Get(ctx, k)
	if err != nil {
		// fail open: the source of truth outranks the cache
		c.log.Warn("cache read failed, bypassing cache", Fields{"key": k, "err": err})
		c.hooks.ReadFailedOpen(k, err)
		return c.load(ctx, k, loader, ttl)
	}
	if ok {
		v, derr := c.codec.Decode(raw)
		if derr == nil {
			c.log.Debug("cache hit", Fields{"key": k})
			c.hooks.Hit(k)
			return v, true, nil
		}
		// self-heal: drop the corrupt entry and treat the read as a miss
		_, _ = c.store.Del(ctx, k)
		c.log.Warn("cache entry corrupt, dropped", Fields{"key": k, "err": derr})
	}

	c.log.Debug("cache miss", Fields{"key": k})
	c.hooks.Miss(k)
	return c.load(ctx, k, loader, ttl)
}

// load runs the loader and writes a present result back. With single-flight
// enabled, concurrent misses on the same storage key share one loader call.
func (c *cache[V]) load(ctx context.Context, k string, loader Loader[V], ttl time.Duration) (V, bool, error) {
	if c.sf == nil {
		return c.loadOnce(ctx, k, loader, ttl)
	}

	type result struct {
		v  V
		ok bool
	}
	out, err, _ := c.sf.Do(k, func() (any, error) {
		v, ok, err := c.loadOnce(ctx, k, loader, ttl)
		if err != nil {
			return nil, err
		}
		return result{v: v, ok: ok}, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	r := out.(result)
	return r.v, r.ok, nil
}

func (c *cache[V]) loadOnce(ctx context.Context, k string, loader Loader[V], ttl time.Duration) (V, bool, error) {
	v, ok, err := loader(ctx)
	if err != nil || !ok {
		// loader errors propagate unchanged; absent results are never cached
		return v, ok, err
	}
	c.writeBack(ctx, k, v, ttl)
	return v, true, nil
}

// writeBack is best-effort: encode or store failures are logged and the
// caller still receives the loaded value.
func (c *cache[V]) writeBack(ctx context.Context, k string, v V, ttl time.Duration) {
	raw, err := c.codec.Encode(v)
	if err != nil {
		c.log.Error("cache encode failed", Fields{"key": k, "err": err})
		c.hooks.WriteFailed(k, err)
		return
	}
	if err := c.store.Set(ctx, k, raw, ttl); err != nil {
		c.log.Error("cache write failed", Fields{"key": k, "err": err})
		c.hooks.WriteFailed(k, err)
		return
	}
	c.log.Debug("cached", Fields{"key": k, "ttl": ttl})
}

func (c *cache[V]) Put(ctx context.Context, namespace, key string, loader Loader[V], ttl time.Duration) (V, bool, error) {
	var zero V
	if err := requireFields(namespace, key, loader != nil); err != nil {
		return zero, false, err
	}
	if !c.enabled {
		return loader(ctx)
	}

	ttl = c.effectiveTTL(ttl)
	k := fullKey(namespace, key)

	v, ok, err := loader(ctx)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		// a put of an absent value means "there is no such value":
		// the entry must not keep serving a stale one
		if _, derr := c.store.Del(ctx, k); derr != nil {
			c.log.Error("cache evict on absent put failed", Fields{"key": k, "err": derr})
			c.hooks.EvictFailed(k, derr)
		} else {
			c.log.Debug("cache evicted (absent result)", Fields{"key": k})
		}
		return zero, false, nil
	}

	c.writeBack(ctx, k, v, ttl)
	return v, true, nil
}

func (c *cache[V]) Evict(ctx context.Context, namespace, key string) error {
	if !c.enabled {
		return nil
	}
	k := fullKey(namespace, key)
	deleted, err := c.store.Del(ctx, k)
	if err != nil {
		c.log.Error("cache evict failed", Fields{"key": k, "err": err})
		c.hooks.EvictFailed(k, err)
		return nil
	}
	if deleted > 0 {
		c.log.Debug("cache evicted", Fields{"key": k})
	} else {
		c.log.Debug("cache key not found", Fields{"key": k})
	}
	return nil
}

func (c *cache[V]) EvictAll(ctx context.Context, namespace string) (int64, error) {
	return c.evictScan(ctx, allPattern(namespace))
}

func (c *cache[V]) EvictByPattern(ctx context.Context, pattern string) (int64, error) {
	return c.evictScan(ctx, pattern)
}

// evictScan walks the store's cursor scan in batches and bulk-deletes each
// non-empty batch. Never a full-keyspace listing: unbounded listings can
// stall a live store. Errors end the walk but the count so far still counts.
func (c *cache[V]) evictScan(ctx context.Context, pattern string) (int64, error) {
	if !c.enabled {
		return 0, nil
	}
	var total int64
	err := c.store.Scan(ctx, pattern, c.scanBatch, func(keys []string) error {
		if len(keys) == 0 {
			return nil
		}
		n, err := c.store.Del(ctx, keys...)
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	if err != nil {
		c.log.Error("bulk eviction failed", Fields{"pattern": pattern, "deleted": total, "err": err})
		c.hooks.EvictFailed(pattern, err)
		return total, nil
	}
	c.log.Debug("cache evicted by pattern", Fields{"pattern": pattern, "deleted": total})
	return total, nil
}

func (c *cache[V]) EvictMultiple(ctx context.Context, namespace string, keys ...string) error {
	if !c.enabled || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = fullKey(namespace, k)
	}
	deleted, err := c.store.Del(ctx, full...)
	if err != nil {
		c.log.Error("cache evict multiple failed", Fields{"namespace": namespace, "err": err})
		c.hooks.EvictFailed(namespace, err)
		return nil
	}
	c.log.Debug("cache evicted multiple", Fields{"namespace": namespace, "deleted": deleted})
	return nil
}

func (c *cache[V]) Exists(ctx context.Context, namespace, key string) bool {
	if !c.enabled {
		return false
	}
	k := fullKey(namespace, key)
	ok, err := c.store.Exists(ctx, k)
	if err != nil {
		// "cannot determine" reads as "not cached"
		c.log.Warn("cache existence check failed", Fields{"key": k, "err": err})
		return false
	}
	return ok
}

func (c *cache[V]) TTL(ctx context.Context, namespace, key string) (time.Duration, bool) {
	if !c.enabled {
		return 0, false
	}
	k := fullKey(namespace, key)
	d, ok, err := c.store.TTL(ctx, k)
	if err != nil {
		c.log.Warn("cache ttl query failed", Fields{"key": k, "err": err})
		return 0, false
	}
	return d, ok
}

// effectiveTTL maps the zero TTL to the engine default. NoTTL (and any
// negative value) passes through; stores treat it as no expiry.
func (c *cache[V]) effectiveTTL(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return c.defaultTTL
	}
	return ttl
}

func requireFields(namespace, key string, hasLoader bool) error {
	if namespace == "" {
		return &ConfigError{Reason: "namespace is required"}
	}
	if key == "" {
		return &ConfigError{Reason: "key is required"}
	}
	if !hasLoader {
		return &ConfigError{Reason: "loader is required"}
	}
	return nil
}
