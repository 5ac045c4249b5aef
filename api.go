package cacheaside

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/cacheaside/codec"
	"github.com/unkn0wn-root/cacheaside/store"
)

// NoTTL stores an entry without expiry. It is also a valid registry value:
// a namespace explicitly registered with NoTTL resolves to NoTTL, never to
// the fallback.
const NoTTL = time.Duration(-1)

// Loader produces the value for a key from the source of truth.
// ok=false is the absent result: Cacheable returns it without writing the
// store, Put turns it into an eviction of the key.
type Loader[V any] func(ctx context.Context) (V, bool, error)

// Cache is the engine-level cache-aside API. V is the caller's value type;
// serialization is handled by a pluggable Codec[V].
type Cache[V any] interface {
	Enabled() bool
	Close(ctx context.Context) error

	// Cacheable returns the cached value for namespace:key, or invokes
	// loader on a miss and writes the result back. A failing store read
	// falls through to the loader (fail-open); store write failures are
	// logged and the loaded value is returned anyway.
	Cacheable(ctx context.Context, namespace, key string, loader Loader[V], ttl time.Duration) (V, bool, error)

	// Put always invokes loader and writes the result. An absent result
	// (ok=false) deletes the key instead, so a stale value never outlives
	// the source of truth saying "gone".
	Put(ctx context.Context, namespace, key string, loader Loader[V], ttl time.Duration) (V, bool, error)

	// Evict removes a single key. Best-effort: missing keys and store
	// errors never fail the caller.
	Evict(ctx context.Context, namespace, key string) error

	// EvictAll removes every key in the namespace via cursor scanning and
	// returns the number of deleted entries.
	EvictAll(ctx context.Context, namespace string) (int64, error)

	// EvictByPattern removes every key matching the raw store pattern.
	EvictByPattern(ctx context.Context, pattern string) (int64, error)

	// EvictMultiple removes the given keys in one bulk delete.
	EvictMultiple(ctx context.Context, namespace string, keys ...string) error

	// Exists reports whether namespace:key is cached. A store error reads
	// as "not cached".
	Exists(ctx context.Context, namespace, key string) bool

	// TTL returns the remaining time-to-live of namespace:key.
	// ok=false when the key is missing, has no expiry, or the store failed.
	TTL(ctx context.Context, namespace, key string) (time.Duration, bool)
}

// Options tune the engine. Only Store and Codec are required.
type Options[V any] struct {
	// Required
	Store store.Store
	Codec c.Codec[V]

	Logger       Logger        // if nil, NopLogger is used
	Hooks        Hooks         // if nil, NopHooks is used
	DefaultTTL   time.Duration // applied when an operation passes ttl 0; 0 => 10m
	ScanBatch    int64         // keys per scan round-trip for bulk eviction; 0 => 100
	SingleFlight bool          // coalesce concurrent misses per key into one loader call
	Disabled     bool          // a disabled cache runs loaders directly and skips the store
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
