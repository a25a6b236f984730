package config

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "127.0.0.1:8686" {
		t.Errorf("HTTPAddr = %q, want localhost default", cfg.Server.HTTPAddr)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Upstream.BaseURL != "https://api.openai.com" {
		t.Errorf("BaseURL = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.Timeout != "60s" {
		t.Errorf("Timeout = %q", cfg.Upstream.Timeout)
	}
	if !cfg.RateLimit.Enabled {
		t.Error("rate limiting should be enabled by default")
	}
	if cfg.RateLimit.Capacity != 60 || cfg.RateLimit.RefillRate != 1 {
		t.Errorf("rate limit defaults = %v/%v", cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate)
	}
	if cfg.Settings.FailAction != "block" {
		t.Errorf("FailAction = %q, want block (fail closed)", cfg.Settings.FailAction)
	}
	if !cfg.Cache.Enabled || cfg.Cache.MaxEntries != 4096 {
		t.Errorf("cache defaults = %v/%d", cfg.Cache.Enabled, cfg.Cache.MaxEntries)
	}

	// Baseline scanner chains apply when none are declared.
	if _, ok := cfg.Input["prompt_injection"]; !ok {
		t.Error("default input chain should include prompt_injection")
	}
	if _, ok := cfg.Output["toxicity"]; !ok {
		t.Error("default output chain should include toxicity")
	}
}

func TestSetDefaults_KeepsDeclaredChains(t *testing.T) {
	cfg := &Config{
		Input: map[string]ScannerConfig{"jailbreak": {}},
	}
	cfg.SetDefaults()

	if len(cfg.Input) != 1 {
		t.Fatalf("declared input chain must not be replaced: %v", cfg.Input)
	}
	if len(cfg.Output) != 0 {
		t.Fatalf("no output chain was declared, got %v", cfg.Output)
	}
}

func TestScannerConfig_IsEnabled(t *testing.T) {
	on := true
	off := false

	if !(ScannerConfig{}).IsEnabled() {
		t.Error("declared scanner should default to enabled")
	}
	if !(ScannerConfig{Enabled: &on}).IsEnabled() {
		t.Error("explicitly enabled scanner")
	}
	if (ScannerConfig{Enabled: &off}).IsEnabled() {
		t.Error("explicitly disabled scanner")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{
			"bad listen address",
			func(c *Config) { c.Server.HTTPAddr = "not an address" },
			"host:port",
		},
		{
			"bad log level",
			func(c *Config) { c.Server.LogLevel = "verbose" },
			"one of",
		},
		{
			"bad upstream url",
			func(c *Config) { c.Upstream.BaseURL = "://nope" },
			"valid URL",
		},
		{
			"bad upstream timeout",
			func(c *Config) { c.Upstream.Timeout = "sixty seconds" },
			"duration",
		},
		{
			"bad fail action",
			func(c *Config) { c.Settings.FailAction = "explode" },
			"one of",
		},
		{
			"bad telemetry output",
			func(c *Config) { c.Settings.TelemetryOutput = "file://relative/path" },
			"stdout",
		},
		{
			"threshold out of range",
			func(c *Config) {
				c.Input = map[string]ScannerConfig{"pii": {Threshold: 1.5}}
			},
			"at most",
		},
		{
			"tier out of range",
			func(c *Config) {
				c.Input = map[string]ScannerConfig{"pii": {Tier: 4}}
			},
			"at most",
		},
		{
			"bad scanner action",
			func(c *Config) {
				c.Output = map[string]ScannerConfig{"toxicity": {Action: "deny"}}
			},
			"one of",
		},
		{
			"bad api key hash",
			func(c *Config) {
				c.Auth.APIKeys = []APIKeyConfig{{KeyHash: "md5:deadbeef", Identity: "alice"}}
			},
			"Argon2id",
		},
		{
			"api key without identity",
			func(c *Config) {
				c.Auth.APIKeys = []APIKeyConfig{{KeyHash: "sha256:" + strings.Repeat("ab", 32)}}
			},
			"required",
		},
		{
			"valid argon2id api key",
			func(c *Config) {
				c.Auth.APIKeys = []APIKeyConfig{{KeyHash: "$argon2id$v=19$m=48128,t=1,p=1$salt$hash", Identity: "alice"}}
			},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultYAML_RoundTrips(t *testing.T) {
	out, err := DefaultYAML()
	if err != nil {
		t.Fatalf("DefaultYAML: %v", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(out, &cfg); err != nil {
		t.Fatalf("generated YAML does not parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("generated YAML does not validate: %v", err)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:8686" {
		t.Errorf("round-tripped HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
}
