// Package config loads CLI configuration from a YAML file with environment
// and flag overrides layered on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration.
type Config struct {
	// BasePath is the Origin store root directory.
	BasePath string `yaml:"base_path" json:"base_path"`

	// OriginName identifies the origin persona/system written into documents.
	OriginName string `yaml:"origin_name" json:"origin_name"`

	// ValidationMode is strict, warn, or off.
	ValidationMode string `yaml:"validation_mode" json:"validation_mode"`

	// IndexPath is the recall index database location. Empty means
	// <base_path>/recall_index.db.
	IndexPath string `yaml:"index_path" json:"index_path"`

	// InitialConfidence seeds new semantic entries. Zero means the default.
	InitialConfidence float64 `yaml:"initial_confidence" json:"initial_confidence"`

	// Verbose enables debug-level logging.
	Verbose bool `yaml:"verbose" json:"verbose"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BasePath:       "MSP",
		OriginName:     "EVA",
		ValidationMode: "strict",
	}
}

// Load reads configuration from path, falling back to ./msp.yaml, then to
// defaults when no file exists. The MSP_BASE environment variable overrides
// the base path.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = "msp.yaml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file is fine; defaults apply.
	default:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if base := os.Getenv("MSP_BASE"); base != "" {
		cfg.BasePath = base
	}

	return cfg, nil
}

// ResolvedIndexPath returns the index database path, applying the default
// location under the base path.
func (c Config) ResolvedIndexPath() string {
	if c.IndexPath != "" {
		return c.IndexPath
	}
	return filepath.Join(c.BasePath, "recall_index.db")
}
