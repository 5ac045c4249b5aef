package cacheaside

// fullKey joins a namespace and a key into the fully-qualified storage key.
// Neither part may contain ':' or '*' (reserved for namespacing and pattern
// scans); the config layer rejects those upstream and the engine stores
// whatever it is handed verbatim, never stripping or escaping.
func fullKey(namespace, key string) string {
	return namespace + ":" + key
}

// allPattern is the scan pattern matching every key in a namespace.
func allPattern(namespace string) string {
	return namespace + ":*"
}
