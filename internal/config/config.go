// Package config provides configuration types and loading for aisafegate.
//
// Configuration comes from a YAML file (aisafegate.yaml), overridable per
// key through AISAFEGATE_* environment variables. Scanner chains are
// declared per direction under the input: and output: keys.
package config

import "github.com/spf13/viper"

// Config is the top-level configuration.
type Config struct {
	// Version is the config schema version.
	Version string `yaml:"version" mapstructure:"version"`

	// Server configures the HTTP proxy listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Upstream configures the OpenAI-compatible backend to forward to.
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`

	// RateLimit configures per-identity request rate limiting.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Settings holds global guard behavior knobs.
	Settings SettingsConfig `yaml:"settings" mapstructure:"settings"`

	// Cache configures the clean-text decision cache.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Auth configures client API key authentication.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Input declares the scanner chain applied to user prompts.
	Input map[string]ScannerConfig `yaml:"input" mapstructure:"input" validate:"omitempty,dive"`

	// Output declares the scanner chain applied to model responses.
	Output map[string]ScannerConfig `yaml:"output" mapstructure:"output" validate:"omitempty,dive"`
}

// ServerConfig configures the HTTP server.
// TLS is out of scope; terminate it at a reverse proxy.
type ServerConfig struct {
	// HTTPAddr is the address to listen on. Defaults to "127.0.0.1:8686"
	// (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error". Defaults to "info".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// UpstreamConfig configures the OpenAI-compatible upstream.
type UpstreamConfig struct {
	// BaseURL is the upstream API base (e.g., "https://api.openai.com").
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`

	// APIKey is the bearer token sent to the upstream. Usually supplied
	// via AISAFEGATE_UPSTREAM_API_KEY rather than the config file.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// Timeout is the per-request upstream timeout (e.g., "60s").
	// Defaults to "60s" if not specified.
	Timeout string `yaml:"timeout,omitempty" mapstructure:"timeout" validate:"omitempty,duration_string"`
}

// RateLimitConfig configures token-bucket rate limiting per identity.
type RateLimitConfig struct {
	// Enabled turns rate limiting on or off.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Capacity is the bucket size (maximum burst).
	// Defaults to 60 if rate limiting is enabled.
	Capacity float64 `yaml:"capacity" mapstructure:"capacity" validate:"omitempty,gt=0"`

	// RefillRate is tokens added per second.
	// Defaults to 1 if rate limiting is enabled.
	RefillRate float64 `yaml:"refill_rate" mapstructure:"refill_rate" validate:"omitempty,gt=0"`

	// CleanupInterval is how often idle identity buckets are swept (e.g., "5m").
	// Defaults to "5m".
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration_string"`

	// MaxTTL is the maximum idle age of a bucket before removal (e.g., "1h").
	// Defaults to "1h".
	MaxTTL string `yaml:"max_ttl" mapstructure:"max_ttl" validate:"omitempty,duration_string"`
}

// SettingsConfig holds global guard behavior knobs.
type SettingsConfig struct {
	// FailAction decides what happens when a scanner times out or errors:
	// "block" fails closed, "warn" fails open. Defaults to "block".
	FailAction string `yaml:"fail_action" mapstructure:"fail_action" validate:"omitempty,oneof=block warn log redact"`

	// Telemetry enables scan event emission. Defaults to true.
	Telemetry bool `yaml:"telemetry" mapstructure:"telemetry"`

	// TelemetryOutput is where scan events are written.
	// Valid values: "stdout" or "file://<absolute-path>". Defaults to "stdout".
	TelemetryOutput string `yaml:"telemetry_output" mapstructure:"telemetry_output" validate:"omitempty,event_output"`

	// Tracing enables OpenTelemetry span export. Defaults to false.
	Tracing bool `yaml:"tracing" mapstructure:"tracing"`

	// PricePer1KTokens is the USD price applied to upstream token usage
	// for spend accounting. Defaults to 0.002.
	PricePer1KTokens float64 `yaml:"price_per_1k_tokens" mapstructure:"price_per_1k_tokens" validate:"omitempty,gte=0"`
}

// CacheConfig configures the decision cache for clean scan results.
type CacheConfig struct {
	// Enabled turns the cache on or off. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// MaxEntries bounds cache size. Defaults to 4096.
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries" validate:"omitempty,min=1"`
}

// AuthConfig configures client API key authentication. When disabled,
// identity comes from the X-User-ID header or the payload user field.
type AuthConfig struct {
	// Enabled turns bearer-token authentication on. Requests without a
	// valid key are rejected with 401.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// APIKeys maps stored key hashes to identities.
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// APIKeyConfig defines an API key that authenticates as an identity.
type APIKeyConfig struct {
	// KeyHash is either an Argon2id hash in PHC format ("$argon2id$...")
	// or a SHA-256 hex hash prefixed with "sha256:". Generate with
	// `aisafegate hash-key`.
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required,key_hash"`

	// Identity is the identity this key authenticates as.
	Identity string `yaml:"identity" mapstructure:"identity" validate:"required"`
}

// ScannerConfig configures a single scanner within a chain.
type ScannerConfig struct {
	// Enabled turns the scanner on or off. Defaults to true when the
	// scanner is declared; omit the scanner entirely to leave it out.
	Enabled *bool `yaml:"enabled,omitempty" mapstructure:"enabled"`

	// Tier overrides the scanner's default cost tier (1, 2, or 3).
	Tier int `yaml:"tier,omitempty" mapstructure:"tier" validate:"omitempty,min=1,max=3"`

	// Threshold is the minimum finding score that triggers the action.
	// Defaults to 0.5.
	Threshold float64 `yaml:"threshold,omitempty" mapstructure:"threshold" validate:"omitempty,gte=0,lte=1"`

	// Action is what happens when the scanner's findings survive the
	// threshold: "block", "warn", "log", or "redact". Defaults to "block".
	Action string `yaml:"action,omitempty" mapstructure:"action" validate:"omitempty,oneof=block warn log redact"`

	// Timeout bounds a single invocation of this scanner (e.g., "5s").
	Timeout string `yaml:"timeout,omitempty" mapstructure:"timeout" validate:"omitempty,duration_string"`

	// Entities restricts the pii scanner to specific entity types.
	Entities []string `yaml:"entities,omitempty" mapstructure:"entities"`

	// BannedTopics lists topics for the topic_ban scanner.
	BannedTopics []string `yaml:"banned_topics,omitempty" mapstructure:"banned_topics"`

	// MinRelevance is the minimum keyword overlap for the relevance scanner.
	MinRelevance float64 `yaml:"min_relevance,omitempty" mapstructure:"min_relevance" validate:"omitempty,gte=0,lte=1"`

	// SuppressIf is a CEL expression; findings it matches are dropped.
	// Variables: scanner, category, score, message, direction, identity.
	SuppressIf string `yaml:"suppress_if,omitempty" mapstructure:"suppress_if"`
}

// IsEnabled reports whether the scanner is active. Declared scanners
// default to enabled.
func (s ScannerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1"
	}

	// Server defaults. Bind to localhost only; users who need network
	// access must explicitly set http_addr.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8686"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	// Upstream defaults
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://api.openai.com"
	}
	if c.Upstream.Timeout == "" {
		c.Upstream.Timeout = "60s"
	}

	// Rate limit defaults. Enabled by default; viper.IsSet distinguishes
	// "not set" from "explicitly false".
	if !viper.IsSet("rate_limit.enabled") {
		c.RateLimit.Enabled = true
	}
	if c.RateLimit.Capacity == 0 {
		c.RateLimit.Capacity = 60
	}
	if c.RateLimit.RefillRate == 0 {
		c.RateLimit.RefillRate = 1
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}
	if c.RateLimit.MaxTTL == "" {
		c.RateLimit.MaxTTL = "1h"
	}

	// Settings defaults
	if c.Settings.FailAction == "" {
		c.Settings.FailAction = "block"
	}
	if !viper.IsSet("settings.telemetry") {
		c.Settings.Telemetry = true
	}
	if c.Settings.TelemetryOutput == "" {
		c.Settings.TelemetryOutput = "stdout"
	}
	if c.Settings.PricePer1KTokens == 0 {
		c.Settings.PricePer1KTokens = 0.002
	}

	// Cache defaults
	if !viper.IsSet("cache.enabled") {
		c.Cache.Enabled = true
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 4096
	}

	// Scanner chain defaults: a guard with no declared scanners gets
	// the baseline protection set.
	if len(c.Input) == 0 && len(c.Output) == 0 {
		c.Input = DefaultInputScanners()
		c.Output = DefaultOutputScanners()
	}
}

// DefaultInputScanners returns the baseline input chain.
func DefaultInputScanners() map[string]ScannerConfig {
	return map[string]ScannerConfig{
		"prompt_injection": {Threshold: 0.8, Action: "block"},
		"pii": {
			Action:   "redact",
			Entities: []string{"EMAIL", "PHONE", "SSN", "CREDIT_CARD"},
		},
	}
}

// DefaultOutputScanners returns the baseline output chain.
func DefaultOutputScanners() map[string]ScannerConfig {
	return map[string]ScannerConfig{
		"toxicity": {Threshold: 0.7, Action: "block"},
		"pii": {
			Action:   "redact",
			Entities: []string{"EMAIL", "PHONE", "SSN", "CREDIT_CARD"},
		},
		"malicious_url": {Action: "block"},
	}
}
