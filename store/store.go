// Package store defines the byte-store abstraction the cacheaside engine
// runs against.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte that was previously passed to Set for a key (no
// prepended/appended metadata, no re-encoding, no mutation). If a store
// performs internal transforms (e.g., compression), they MUST be fully
// reversed so that the bytes returned by Get are identical to the bytes
// provided to Set.
package store

import (
	"context"
	"time"
)

// Store is a minimal byte store with TTLs and cursor-based pattern scan.
// Must be safe for concurrent use.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. Non-positive TTLs mean
	// "no expiry".
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes keys and returns how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	// Scan streams the keys matching pattern to fn in batches of at most
	// count. It must be cursor-based/incremental: implementations must
	// never materialize the full keyspace in one call. A non-nil error
	// from fn stops the scan and is returned.
	Scan(ctx context.Context, pattern string, count int64, fn func(keys []string) error) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// TTL returns the remaining time-to-live of key. ok=false when the
	// key is missing or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)

	// Close releases resources.
	Close(ctx context.Context) error
}
