package cacheaside

import (
	"fmt"
	"time"
)

// TTLRegistry maps namespaces to their configured time-to-live. Built once
// at startup from declarative config and immutable afterwards; read by every
// cache operation.
type TTLRegistry struct {
	entries map[string]time.Duration
}

// NewTTLRegistry validates and freezes the namespace -> TTL mapping.
// Durations must be positive; NoTTL registers a namespace as explicitly
// unexpiring. Zero is rejected so that "forgot to set a TTL" cannot be
// confused with "no expiry".
func NewTTLRegistry(entries map[string]time.Duration) (*TTLRegistry, error) {
	m := make(map[string]time.Duration, len(entries))
	for namespace, ttl := range entries {
		if namespace == "" {
			return nil, &ConfigError{Reason: "ttl entry: namespace is required"}
		}
		if ttl == 0 || (ttl < 0 && ttl != NoTTL) {
			return nil, &ConfigError{
				Reason: fmt.Sprintf("ttl for %q must be positive (or NoTTL for no expiry), got %v", namespace, ttl),
			}
		}
		m[namespace] = ttl
	}
	return &TTLRegistry{entries: m}, nil
}

// Resolve returns the registered TTL for namespace. Never fails; ok=false
// means the namespace was never registered.
func (r *TTLRegistry) Resolve(namespace string) (time.Duration, bool) {
	if r == nil {
		return 0, false
	}
	d, ok := r.entries[namespace]
	return d, ok
}

// ResolveOrDefault returns the registered TTL, or fallback when the
// namespace is absent. A registered value is returned verbatim even when it
// is the NoTTL sentinel: only a missing namespace triggers the fallback.
func (r *TTLRegistry) ResolveOrDefault(namespace string, fallback time.Duration) time.Duration {
	if d, ok := r.Resolve(namespace); ok {
		return d
	}
	return fallback
}
