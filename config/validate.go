package config

import (
	"fmt"
	"strings"
)

// ValidateKeyFormat rejects namespace or key components containing ':' or
// '*'. Those characters are reserved: ':' separates namespace from key in
// the storage key, '*' drives pattern scans. The engine stores whatever it
// is handed verbatim, so rejection has to happen here, upstream.
func ValidateKeyFormat(part string) error {
	if strings.ContainsAny(part, ":*") {
		return fmt.Errorf("%q may not contain ':' or '*'", part)
	}
	return nil
}

// ValidateNamespaceAndKey checks both components of a storage key.
func ValidateNamespaceAndKey(namespace, key string) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if err := ValidateKeyFormat(namespace); err != nil {
		return fmt.Errorf("namespace: %w", err)
	}
	if err := ValidateKeyFormat(key); err != nil {
		return fmt.Errorf("key: %w", err)
	}
	return nil
}
