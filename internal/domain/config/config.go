// Package config holds the application configuration: which account to
// scan, how to fetch, detection bounds, batch pacing, the WordPress host
// and the state store backend.
package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Validation errors.
var (
	ErrNoAccount          = errors.New("account is required")
	ErrUnknownFetchMethod = errors.New("unknown fetch method")
	ErrUnknownBackend     = errors.New("unknown store backend")
	ErrUnknownLogLevel    = errors.New("unknown log level")
)

// Fetch methods.
const (
	FetchAPIWithFallback = "api_with_fallback"
	FetchAPIOnly         = "api_only"
	FetchWebOnly         = "web_only"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// GitHubConfig configures repository fetching.
type GitHubConfig struct {
	// APIBaseURL overrides the API host, for testing.
	APIBaseURL string `yaml:"api_base_url,omitempty"`
	// WebBaseURL overrides the public listing host, for testing.
	WebBaseURL string `yaml:"web_base_url,omitempty"`
	// Token raises the API rate limit. Usually injected via
	// GITPLUG_GITHUB_TOKEN rather than written to disk.
	Token      string   `yaml:"token,omitempty"`
	Timeout    Duration `yaml:"timeout,omitempty"`
	RetryCount int      `yaml:"retry_count,omitempty"`
	RetryDelay Duration `yaml:"retry_delay,omitempty"`
	CacheTTL   Duration `yaml:"cache_ttl,omitempty"`
}

// DetectionConfig configures plugin header detection.
type DetectionConfig struct {
	BaseURL        string   `yaml:"base_url,omitempty"`
	Timeout        Duration `yaml:"timeout,omitempty"`
	MaxHeaderBytes int64    `yaml:"max_header_bytes,omitempty"`
	CacheTTL       Duration `yaml:"cache_ttl,omitempty"`
	// Skip bypasses detection and treats every repository as a plugin.
	Skip bool `yaml:"skip,omitempty"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	// ItemDelay spaces out per-repository work.
	ItemDelay Duration `yaml:"item_delay,omitempty"`
}

// WordPressConfig configures the wp-cli host adapter.
type WordPressConfig struct {
	// Bin is the wp-cli binary, default "wp".
	Bin string `yaml:"bin,omitempty"`
	// Path is the WordPress installation root, passed as --path.
	Path string `yaml:"path,omitempty"`
}

// StoreConfig configures state persistence.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend,omitempty"`
	// Path is the SQLite database file, ignored for the memory backend.
	Path string `yaml:"path,omitempty"`
	// StateTTL is how long memory-backed state survives, default 168h.
	StateTTL Duration `yaml:"state_ttl,omitempty"`
}

// Config is the root configuration (gitplug.yaml).
type Config struct {
	// Account is the GitHub account whose repositories are scanned.
	Account string `yaml:"account"`
	// FetchMethod selects the fetch strategy, default api_with_fallback.
	FetchMethod string `yaml:"fetch_method,omitempty"`
	// Limit caps how many repositories are fetched, 0 for no cap.
	Limit int `yaml:"limit,omitempty"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level,omitempty"`

	GitHub    GitHubConfig    `yaml:"github,omitempty"`
	Detection DetectionConfig `yaml:"detection,omitempty"`
	Batch     BatchConfig     `yaml:"batch,omitempty"`
	WordPress WordPressConfig `yaml:"wordpress,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
}

// Default returns the configuration defaults. Component-level zero-value
// defaults (timeouts, TTLs) are applied by the components themselves; only
// the choices a component cannot default for itself live here.
func Default() Config {
	return Config{
		FetchMethod: FetchAPIWithFallback,
		LogLevel:    "info",
		WordPress:   WordPressConfig{Bin: "wp"},
		Store:       StoreConfig{Backend: BackendMemory},
	}
}

var validFetchMethods = map[string]bool{
	FetchAPIWithFallback: true,
	FetchAPIOnly:         true,
	FetchWebOnly:         true,
}

var validBackends = map[string]bool{
	BackendMemory: true,
	BackendSQLite: true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for contradictions. The account is
// deliberately not required here: repository-scoped commands work without
// one, and account-scoped callers enforce ErrNoAccount themselves.
func (c Config) Validate() error {
	if !validFetchMethods[c.FetchMethod] {
		return fmt.Errorf("%w: %q", ErrUnknownFetchMethod, c.FetchMethod)
	}
	if !validBackends[c.Store.Backend] {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Store.Backend)
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("%w: %q", ErrUnknownLogLevel, c.LogLevel)
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", c.Limit)
	}
	return nil
}

// Parse parses a Config from YAML bytes, layered over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyFallbacks()
	return cfg, nil
}

// applyFallbacks restores defaults that an explicit empty value in the file
// would otherwise erase.
func (c *Config) applyFallbacks() {
	if c.FetchMethod == "" {
		c.FetchMethod = FetchAPIWithFallback
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.WordPress.Bin == "" {
		c.WordPress.Bin = "wp"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
}
