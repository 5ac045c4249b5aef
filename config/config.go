// Package config loads the declarative cache descriptor: Redis topology,
// credentials, timeouts and per-namespace TTLs. Validation happens at load
// time so a broken descriptor fails the process at startup, not mid-call.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	goredis "github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/cacheaside"
)

// Mode selects the Redis topology.
type Mode string

const (
	ModeStandalone Mode = "standalone"
	ModeCluster    Mode = "cluster"
	ModeSentinel   Mode = "sentinel"
)

// Host is one Redis endpoint.
type Host struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required,min=1,max=65535"`
}

func (h Host) addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// TTLEntry declares the time-to-live for one namespace. TTL is a Go
// duration string ("10m", "1h30m"); the literal "none" registers the
// namespace as explicitly unexpiring.
type TTLEntry struct {
	Name string `yaml:"name" validate:"required"`
	TTL  string `yaml:"ttl" validate:"required"`
}

// Config is the full cache descriptor.
type Config struct {
	Mode           Mode       `yaml:"mode" validate:"required,oneof=standalone cluster sentinel"`
	Hosts          []Host     `yaml:"hosts" validate:"required,min=1,dive"`
	Username       string     `yaml:"username"`
	Password       string     `yaml:"password"`
	SentinelMaster string     `yaml:"sentinelMaster"`
	ConnectTimeout string     `yaml:"connectTimeout"` // duration string; empty keeps the client default
	ReadTimeout    string     `yaml:"readTimeout"`
	TTLs           []TTLEntry `yaml:"ttls" validate:"dive"`
}

var validate = validator.New()

// Load reads and parses the descriptor at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and fully validates a YAML descriptor.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validateMode(); err != nil {
		return nil, err
	}
	if err := cfg.validateTimeouts(); err != nil {
		return nil, err
	}
	for _, e := range cfg.TTLs {
		if err := ValidateKeyFormat(e.Name); err != nil {
			return nil, fmt.Errorf("config: ttl entry: %w", err)
		}
		if _, err := parseTTL(e.TTL); err != nil {
			return nil, fmt.Errorf("config: ttl for %q: %w", e.Name, err)
		}
	}
	return &cfg, nil
}

// validateMode applies the per-topology host rules: standalone needs exactly
// one host, cluster and sentinel need more than one for redundancy, sentinel
// additionally needs a master name.
func (c *Config) validateMode() error {
	switch c.Mode {
	case ModeStandalone:
		if len(c.Hosts) != 1 {
			return fmt.Errorf("config: standalone mode requires exactly one host entry, got %d", len(c.Hosts))
		}
	case ModeCluster:
		if len(c.Hosts) < 2 {
			return fmt.Errorf("config: cluster mode requires host entries for proper redundancy")
		}
	case ModeSentinel:
		if c.SentinelMaster == "" {
			return fmt.Errorf("config: sentinelMaster must be configured when using sentinel mode")
		}
		if len(c.Hosts) < 2 {
			return fmt.Errorf("config: sentinel mode requires host entries for proper redundancy")
		}
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	for name, raw := range map[string]string{"connectTimeout": c.ConnectTimeout, "readTimeout": c.ReadTimeout} {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %v", name, d)
		}
	}
	return nil
}

// TTLRegistry builds the immutable namespace -> TTL mapping declared by the
// descriptor.
func (c *Config) TTLRegistry() (*cacheaside.TTLRegistry, error) {
	entries := make(map[string]time.Duration, len(c.TTLs))
	for _, e := range c.TTLs {
		d, err := parseTTL(e.TTL)
		if err != nil {
			return nil, fmt.Errorf("config: ttl for %q: %w", e.Name, err)
		}
		entries[e.Name] = d
	}
	return cacheaside.NewTTLRegistry(entries)
}

// NewClient builds the go-redis client for the configured topology. The
// universal client routes by MasterName (sentinel) and address count
// (cluster vs standalone); validateMode guarantees those line up with Mode.
func (c *Config) NewClient() goredis.UniversalClient {
	opts := &goredis.UniversalOptions{
		Addrs:    make([]string, 0, len(c.Hosts)),
		Username: c.Username,
		Password: c.Password,
	}
	for _, h := range c.Hosts {
		opts.Addrs = append(opts.Addrs, h.addr())
	}
	if c.Mode == ModeSentinel {
		opts.MasterName = c.SentinelMaster
	}
	if c.ConnectTimeout != "" {
		opts.DialTimeout, _ = time.ParseDuration(c.ConnectTimeout)
	}
	if c.ReadTimeout != "" {
		opts.ReadTimeout, _ = time.ParseDuration(c.ReadTimeout)
	}
	return goredis.NewUniversalClient(opts)
}

func parseTTL(raw string) (time.Duration, error) {
	if raw == "none" {
		return cacheaside.NoTTL, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("ttl must be positive, got %v", d)
	}
	return d, nil
}
