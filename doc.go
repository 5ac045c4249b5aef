// Package cacheaside implements a cache-aside layer in front of a remote
// key-value store. The engine serves get-or-load (Cacheable), unconditional
// write-through (Put) and best-effort eviction primitives over a pluggable
// byte Store; the intercept subpackage maps declarative cache intents onto
// the same primitives so business calls opt into caching by declaration.
//
// Components:
//   - store.Store: byte store with TTL and cursor-based pattern scan
//     (Redis and in-process implementations provided).
//   - codec.Codec[V]: (de)serializes V <-> []byte.
//   - TTLRegistry: namespace -> time-to-live, resolved with a fallback.
//   - intercept: condition/key expressions, default-key policy, and the
//     composite intent dispatcher.
//
// Keys:
//
//	<namespace>:<key> - one entry per fully-qualified key
//	<namespace>:*     - scan pattern for namespace-wide eviction
//
// Failure discipline: a failing read bypasses the cache and loads from the
// source of truth; failing writes and evictions are logged and never
// surfaced to the business caller; loader errors always propagate unchanged.
package cacheaside
