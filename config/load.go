package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a TOML or YAML file (chosen by extension) over Default() and
// validates the result. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode toml config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode yaml config %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("config %s: unsupported extension (want .toml, .yaml or .yml)", path)
	}

	cfg.Backend = CodecBackend(strings.ToLower(string(cfg.Backend)))
	cfg.Storage = StorageBackend(strings.ToLower(string(cfg.Storage)))
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
