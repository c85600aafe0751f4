// Package config loads the gateway configuration from a YAML file. Each
// section carries its own Validate method that applies defaults and bounds,
// so a partially specified file still yields a runnable configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tallyhq/ledgergate/errors"
)

// Config is the root configuration for the ledgergate process.
type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Governance      GovernanceConfig      `yaml:"governance"`
	ResponseCache   ResponseCacheConfig   `yaml:"response_cache"`
	CredentialCache CredentialCacheConfig `yaml:"credential_cache"`
	Auth            AuthConfig            `yaml:"auth"`
	RateLimit       RateLimitConfig       `yaml:"rate_limit"`

	// Hardened collapses error detail for non-client-fault errors and
	// scrubs anything path-like or stack-like from passed-through messages.
	Hardened bool `yaml:"hardened"`
}

// ServerConfig controls the HTTP host surface.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	EnablePlayground bool          `yaml:"enable_playground"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// Validate applies defaults and checks bounds.
func (c *ServerConfig) Validate() error {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Port)
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return nil
}

// GovernanceConfig holds the query shape ceilings and input size limits.
type GovernanceConfig struct {
	MaxComplexity          float64            `yaml:"max_complexity"`
	MaxCost                float64            `yaml:"max_cost"`
	MaxDepth               int                `yaml:"max_depth"`
	DefaultFieldWeight     float64            `yaml:"default_field_weight"`
	FieldWeights           map[string]float64 `yaml:"field_weights"`
	BaseCostPerField       float64            `yaml:"base_cost_per_field"`
	CostMultiplierPerDepth float64            `yaml:"cost_multiplier_per_depth"`
	MaxStringLength        int                `yaml:"max_string_length"`
	MaxArrayLength         int                `yaml:"max_array_length"`
}

// Validate applies defaults and checks bounds.
func (c *GovernanceConfig) Validate() error {
	if c.MaxComplexity == 0 {
		c.MaxComplexity = 1000
	}
	if c.MaxCost == 0 {
		c.MaxCost = 10000
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = 15
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be positive, got %d", c.MaxDepth)
	}
	if c.DefaultFieldWeight == 0 {
		c.DefaultFieldWeight = 1
	}
	if c.BaseCostPerField == 0 {
		c.BaseCostPerField = 1
	}
	if c.CostMultiplierPerDepth == 0 {
		c.CostMultiplierPerDepth = 1.5
	}
	if c.MaxStringLength == 0 {
		c.MaxStringLength = 10000
	}
	if c.MaxArrayLength == 0 {
		c.MaxArrayLength = 1000
	}
	if c.MaxComplexity < 0 || c.MaxCost < 0 {
		return fmt.Errorf("governance ceilings cannot be negative")
	}
	return nil
}

// TTLRule maps an operation-name or query-text substring to a TTL. Rules are
// evaluated in declaration order; the first match wins.
type TTLRule struct {
	Match string        `yaml:"match"`
	TTL   time.Duration `yaml:"ttl"`
}

// ResponseCacheConfig controls the query response cache.
type ResponseCacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxEntries int           `yaml:"max_entries"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
	Rules      []TTLRule     `yaml:"rules"`
}

// Validate applies defaults and checks bounds.
func (c *ResponseCacheConfig) Validate() error {
	if c.MaxEntries == 0 {
		c.MaxEntries = 10000
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("response cache max_entries cannot be negative")
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = 60 * time.Second
	}
	for i, r := range c.Rules {
		if r.Match == "" {
			return fmt.Errorf("response cache rule %d has an empty match", i)
		}
		if r.TTL <= 0 {
			return fmt.Errorf("response cache rule %q has a non-positive ttl", r.Match)
		}
	}
	return nil
}

// CredentialCacheConfig controls the verified-credential cache.
type CredentialCacheConfig struct {
	MaxEntries      int           `yaml:"max_entries"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Validate applies defaults and checks bounds.
func (c *CredentialCacheConfig) Validate() error {
	if c.MaxEntries == 0 {
		c.MaxEntries = 5000
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("credential cache max_entries cannot be negative")
	}
	if c.TTL == 0 {
		c.TTL = 5 * time.Minute
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = time.Minute
	}
	return nil
}

// AuthConfig points at the external identity provider.
type AuthConfig struct {
	DiscoveryURL         string        `yaml:"discovery_url"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	DiscoveryMaxAttempts int           `yaml:"discovery_max_attempts"`
	DiscoveryRetryStep   time.Duration `yaml:"discovery_retry_step"`
}

// Validate applies defaults and checks bounds. The discovery URL is the one
// field with no default: the process cannot authenticate without it.
func (c *AuthConfig) Validate() error {
	if c.DiscoveryURL == "" {
		return errors.ErrMissingConfig
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.DiscoveryMaxAttempts == 0 {
		c.DiscoveryMaxAttempts = 5
	}
	if c.DiscoveryRetryStep == 0 {
		c.DiscoveryRetryStep = 2 * time.Second
	}
	return nil
}

// RateLimitConfig controls the per-identity token bucket stage.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	MaxTracked        int     `yaml:"max_tracked"`
}

// Validate applies defaults and checks bounds.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 25
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("rate limit requests_per_second cannot be negative")
	}
	if c.Burst == 0 {
		c.Burst = 50
	}
	if c.MaxTracked == 0 {
		c.MaxTracked = 10000
	}
	return nil
}

// Validate validates every section.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "server section")
	}
	if err := c.Governance.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "governance section")
	}
	if err := c.ResponseCache.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "response_cache section")
	}
	if err := c.CredentialCache.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "credential_cache section")
	}
	if err := c.Auth.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "auth section")
	}
	if err := c.RateLimit.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "rate_limit section")
	}
	return nil
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config", "Load", "read file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "parse yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
