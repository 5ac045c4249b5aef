package cacheaside

// Hooks lightweight callbacks for high-signal cache events.
// Implementations MUST be cheap and non-blocking; the engine calls them on
// hot paths.
type Hooks interface {
	// Served from the store.
	Hit(storageKey string)

	// Not in the store; the loader is about to run.
	Miss(storageKey string)

	// The store read failed and the call fell through to the loader.
	ReadFailedOpen(storageKey string, err error)

	// Encoding or the store write failed; the loaded value was still
	// returned to the caller.
	WriteFailed(storageKey string, err error)

	// A best-effort eviction failed. keyOrPattern is the storage key,
	// the namespace (multi-key evict) or the scan pattern (bulk evict).
	EvictFailed(keyOrPattern string, err error)

	// A condition or key expression failed to evaluate and the dispatcher
	// fell back (condition true / default key).
	ExpressionFallback(expression string, err error)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) Hit(string)                       {}
func (NopHooks) Miss(string)                      {}
func (NopHooks) ReadFailedOpen(string, error)     {}
func (NopHooks) WriteFailed(string, error)        {}
func (NopHooks) EvictFailed(string, error)        {}
func (NopHooks) ExpressionFallback(string, error) {}
