//go:build !(rp2040 || rp2350)

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// EmbeddedConfigLookup allows overriding how per-device defaults resolve.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// Load builds the boot config for device: embedded defaults first, then the
// file at path (if any) on top. Missing fields get ApplyDefaults values.
func Load(device, path string) (*Config, error) {
	cfg := &Config{Device: device}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok && path == "" {
		return nil, errors.New("no embedded config for device: " + device)
	}
	if ok {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: embedded %s: %w", device, err)
		}
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if cfg.Device == "" {
		cfg.Device = device
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Marshal renders cfg as YAML, for `bridge config`.
func Marshal(cfg *Config) ([]byte, error) { return yaml.Marshal(cfg) }
