package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config drives cmd/crawler: which sources to ingest and where the
// checkpoint files live. The database path keeps its own env override
// in pkg/database.
type Config struct {
	StateDir string         `yaml:"state_dir"`
	Sources  []SourceConfig `yaml:"sources"`
}

type SourceConfig struct {
	// Kind selects the adapter: "edostavka", "gippo" or "mirror".
	Kind string `yaml:"kind"`
	// Name is the source row name, e.g. "edostavka.by". Defaults to Kind.
	Name string `yaml:"name,omitempty"`
	// BaseURL overrides the adapter's default host (used by tests and
	// local mirrors).
	BaseURL string `yaml:"base_url,omitempty"`
	// Path is the fixture file for the mirror adapter.
	Path string `yaml:"path,omitempty"`
	// RootAliases are chain roots meaning "all products"; such nodes
	// are filtered out and never persisted as categories.
	RootAliases []string `yaml:"root_aliases,omitempty"`
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".pricewatch", "state")
}

// Load reads the YAML config file, falling back to PRICEWATCH_CONFIG
// and then "config.yaml" when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("PRICEWATCH_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.StateDir == "" {
		cfg.StateDir = defaultStateDir()
	}
	if d := os.Getenv("PRICEWATCH_STATE_DIR"); d != "" {
		cfg.StateDir = d
	}
	for i := range cfg.Sources {
		if cfg.Sources[i].Name == "" {
			cfg.Sources[i].Name = cfg.Sources[i].Kind
		}
	}
	return &cfg, nil
}
