package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for aisafegate.yaml/.yml
// in standard locations. The search requires an explicit YAML extension
// to avoid matching the binary itself.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("aisafegate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: AISAFEGATE_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("AISAFEGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for an aisafegate config
// file with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".aisafegate"),
		"/etc/aisafegate",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "aisafegate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment variable
// support. Example: AISAFEGATE_UPSTREAM_API_KEY overrides upstream.api_key.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")

	_ = viper.BindEnv("upstream.base_url")
	_ = viper.BindEnv("upstream.api_key")
	_ = viper.BindEnv("upstream.timeout")

	_ = viper.BindEnv("rate_limit.enabled")
	_ = viper.BindEnv("rate_limit.capacity")
	_ = viper.BindEnv("rate_limit.refill_rate")
	_ = viper.BindEnv("rate_limit.cleanup_interval")
	_ = viper.BindEnv("rate_limit.max_ttl")

	_ = viper.BindEnv("settings.fail_action")
	_ = viper.BindEnv("settings.telemetry")
	_ = viper.BindEnv("settings.telemetry_output")
	_ = viper.BindEnv("settings.tracing")
	_ = viper.BindEnv("settings.price_per_1k_tokens")

	_ = viper.BindEnv("cache.enabled")
	_ = viper.BindEnv("cache.max_entries")

	_ = viper.BindEnv("auth.enabled")
	// Note: auth.api_keys is an array, complex to override via env.

	// Note: input and output are maps of scanner configs, complex to
	// override via env. Users should use the config file for these.
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and validates the result.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found: continue with env vars and defaults.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded, or an empty string when running from env vars and defaults only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
