package cacheaside

// ConfigError reports a programming mistake at declaration or construction
// time: a missing namespace, key or loader, an invalid TTL. These surface
// synchronously and fast, unlike store errors which the engine absorbs.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "cacheaside: " + e.Reason
}
