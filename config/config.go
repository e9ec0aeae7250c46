package config

import (
	"errors"
	"fmt"
	"time"
)

// StorageBackend selects the storage adapter.
type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageS3    StorageBackend = "s3"
)

// CodecBackend selects the decode/encode engine.
type CodecBackend string

const (
	BackendGo   CodecBackend = "go"   // pure-Go codecs; no camera raw, no WebP/AVIF output
	BackendVips CodecBackend = "vips" // libvips via govips
)

// DefaultConcurrency bounds a batch when neither the job nor the config sets
// a limit.
const DefaultConcurrency = 4

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	// Batch controls.
	Concurrency        int `toml:"concurrency" yaml:"concurrency"`
	QueueSize          int `toml:"queue_size" yaml:"queue_size"`
	ItemTimeoutSeconds int `toml:"item_timeout_seconds" yaml:"item_timeout_seconds"` // 0 = none

	// Default encode options applied when a request does not override.
	DefaultQuality int    `toml:"default_quality" yaml:"default_quality"` // 1-100; default 85
	DefaultFormat  string `toml:"default_format" yaml:"default_format"`

	// Streaming / memory limits.
	MaxImageBytes int64 `toml:"max_image_bytes" yaml:"max_image_bytes"` // 0 = no limit
	ChunkSize     int   `toml:"chunk_size" yaml:"chunk_size"`           // default 32 KiB

	// Codec backend.
	Backend CodecBackend `toml:"backend" yaml:"backend"`
	Vips    VipsConfig   `toml:"vips" yaml:"vips"`

	// Storage.
	Storage StorageBackend `toml:"storage" yaml:"storage"`
	Local   LocalConfig    `toml:"local" yaml:"local"`
	S3      S3Config       `toml:"s3" yaml:"s3"`

	// Logging.
	LogLevel  string `toml:"log_level" yaml:"log_level"`   // "debug", "info", "warn", "error"
	LogFormat string `toml:"log_format" yaml:"log_format"` // "text", "json"
}

// VipsConfig configures the libvips backend.
type VipsConfig struct {
	MaxCacheSize int  `toml:"max_cache_size" yaml:"max_cache_size"`
	MaxWorkers   int  `toml:"max_workers" yaml:"max_workers"` // 0 = NumCPU
	ReportLeaks  bool `toml:"report_leaks" yaml:"report_leaks"`
}

// LocalConfig configures the local filesystem storage adapter.
type LocalConfig struct {
	Permissions uint32 `toml:"permissions" yaml:"permissions"` // default 0644
}

// S3Config configures the S3 storage adapter.
type S3Config struct {
	Bucket       string `toml:"bucket" yaml:"bucket"`
	Region       string `toml:"region" yaml:"region"`
	Endpoint     string `toml:"endpoint" yaml:"endpoint"` // optional custom endpoint (MinIO, etc.)
	UsePathStyle bool   `toml:"use_path_style" yaml:"use_path_style"`
}

// ItemTimeout returns the per-input batch timeout.
func (c Config) ItemTimeout() time.Duration {
	return time.Duration(c.ItemTimeoutSeconds) * time.Second
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		Concurrency:    DefaultConcurrency,
		QueueSize:      256,
		DefaultQuality: 85,
		DefaultFormat:  "jpeg",
		ChunkSize:      32 * 1024,
		Backend:        BackendGo,
		Storage:        StorageLocal,
		Local:          LocalConfig{Permissions: 0o644},
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	var errs []error
	if c.DefaultQuality < 1 || c.DefaultQuality > 100 {
		errs = append(errs, errors.New("config: DefaultQuality must be between 1 and 100"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("config: ChunkSize must be positive"))
	}
	if c.Concurrency < 0 {
		errs = append(errs, errors.New("config: Concurrency must not be negative"))
	}
	if c.ItemTimeoutSeconds < 0 {
		errs = append(errs, errors.New("config: ItemTimeoutSeconds must not be negative"))
	}
	if c.MaxImageBytes < 0 {
		errs = append(errs, errors.New("config: MaxImageBytes must not be negative"))
	}
	switch c.Backend {
	case BackendGo, BackendVips:
	default:
		errs = append(errs, fmt.Errorf("config: unknown backend %q", c.Backend))
	}
	switch c.Storage {
	case StorageLocal:
	case StorageS3:
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("config: S3.Bucket is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown storage %q", c.Storage))
	}
	return errors.Join(errs...)
}
