package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Skryldev/raw-converter/config"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := config.Validate(config.Default()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"quality zero", func(c *config.Config) { c.DefaultQuality = 0 }},
		{"chunk size", func(c *config.Config) { c.ChunkSize = 0 }},
		{"negative concurrency", func(c *config.Config) { c.Concurrency = -1 }},
		{"unknown backend", func(c *config.Config) { c.Backend = "magick" }},
		{"s3 without bucket", func(c *config.Config) { c.Storage = config.StorageS3 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := config.Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "rawconv.toml", `
concurrency = 8
item_timeout_seconds = 30
default_quality = 90
backend = "VIPS"

[vips]
max_workers = 2
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Concurrency != 8 || cfg.DefaultQuality != 90 {
		t.Errorf("values not applied: %+v", cfg)
	}
	if cfg.Backend != config.BackendVips {
		t.Errorf("backend = %q, want vips", cfg.Backend)
	}
	if cfg.Vips.MaxWorkers != 2 {
		t.Errorf("vips.max_workers = %d, want 2", cfg.Vips.MaxWorkers)
	}
	if cfg.ItemTimeout() != 30*time.Second {
		t.Errorf("item timeout = %s", cfg.ItemTimeout())
	}
	if cfg.ChunkSize != 32*1024 {
		t.Errorf("default chunk size lost: %d", cfg.ChunkSize)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "rawconv.yaml", "concurrency: 2\nlog_format: json\nstorage: s3\ns3:\n  bucket: photos\n")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Concurrency != 2 || cfg.LogFormat != "json" || cfg.S3.Bucket != "photos" {
		t.Errorf("values not applied: %+v", cfg)
	}
}

func TestLoadRejects(t *testing.T) {
	if _, err := config.Load(writeFile(t, "bad.toml", "default_quality = 0\n")); err == nil {
		t.Error("expected validation error")
	}
	if _, err := config.Load(writeFile(t, "conf.ini", "x=1\n")); err == nil {
		t.Error("expected unsupported extension error")
	}
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected open error")
	}
	cfg, err := config.Load("")
	if err != nil || cfg.Concurrency != config.DefaultConcurrency {
		t.Errorf("empty path: %+v, %v", cfg, err)
	}
}
