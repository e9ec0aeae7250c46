package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	gometrics "github.com/rcrowley/go-metrics"

	rawconverter "github.com/Skryldev/raw-converter"
	"github.com/Skryldev/raw-converter/adapters/storage"
	"github.com/Skryldev/raw-converter/adapters/vips"
	"github.com/Skryldev/raw-converter/config"
	"github.com/Skryldev/raw-converter/hooks"
)

type globalFlags struct {
	config    string
	logLevel  string
	logFormat string
	backend   string
	stats     bool
}

type commandContext struct {
	flags *globalFlags

	once    sync.Once
	conv    *rawconverter.Converter
	cfg     config.Config
	logger  *hooks.SlogLogger
	metrics *hooks.GoMetrics
	backend *vips.Backend
	err     error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

// firstNonEmpty returns the first value that is not blank.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// resolveConfig layers the config file, RAWCONV_* variables and flags.
func (c *commandContext) resolveConfig() (config.Config, error) {
	cfg, err := config.Load(firstNonEmpty(c.flags.config, os.Getenv("RAWCONV_CONFIG")))
	if err != nil {
		return cfg, err
	}
	if v := firstNonEmpty(c.flags.logLevel, os.Getenv("RAWCONV_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := firstNonEmpty(c.flags.logFormat, os.Getenv("RAWCONV_LOG_FORMAT")); v != "" {
		cfg.LogFormat = v
	}
	if v := firstNonEmpty(c.flags.backend, os.Getenv("RAWCONV_BACKEND")); v != "" {
		cfg.Backend = config.CodecBackend(strings.ToLower(v))
	}
	return cfg, config.Validate(cfg)
}

func (c *commandContext) ensureConverter() (*rawconverter.Converter, error) {
	c.once.Do(func() {
		cfg, err := c.resolveConfig()
		if err != nil {
			c.err = err
			return
		}
		logger, err := hooks.NewLogger(hooks.LoggerOptions{Level: cfg.LogLevel, Format: cfg.LogFormat})
		if err != nil {
			c.err = err
			return
		}
		conv, err := rawconverter.New(cfg)
		if err != nil {
			c.err = err
			return
		}
		conv.SetLogger(logger)
		conv.AddHook(hooks.NewLoggingHook(logger))
		metrics := hooks.NewGoMetrics(gometrics.NewRegistry())
		conv.SetMetrics(metrics)

		if cfg.Backend == config.BackendVips {
			c.backend = vips.NewBackend(vips.BackendConfig{
				DefaultQuality: cfg.DefaultQuality,
				MaxCacheSize:   cfg.Vips.MaxCacheSize,
				MaxWorkers:     cfg.Vips.MaxWorkers,
				ReportLeaks:    cfg.Vips.ReportLeaks,
			})
			vips.RegisterVipsBackend(conv.Registry(), c.backend)
		}
		if cfg.Storage == config.StorageS3 {
			logger.Warn("rawconv.storage", "message", "s3 storage needs a client; writing outputs locally")
			local, err := storage.NewLocal("", os.FileMode(cfg.Local.Permissions))
			if err != nil {
				c.err = err
				return
			}
			conv.SetStorage(local)
		}
		c.cfg, c.logger, c.conv, c.metrics = cfg, logger, conv, metrics
	})
	if c.err != nil {
		return nil, fmt.Errorf("rawconv: %w", c.err)
	}
	return c.conv, nil
}

func (c *commandContext) close() {
	if c.backend != nil {
		c.backend.Shutdown()
		c.backend = nil
	}
}
