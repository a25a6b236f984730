package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Default returns a fully-populated default configuration, equivalent
// to loading an empty config file.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// DefaultYAML renders the default configuration as YAML, suitable for
// writing a starter aisafegate.yaml.
func DefaultYAML() ([]byte, error) {
	out, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal default config: %w", err)
	}
	header := []byte("# aisafegate configuration\n# Override any key with AISAFEGATE_* environment variables.\n\n")
	return append(header, out...), nil
}
