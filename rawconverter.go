// Package rawconverter converts camera raw and raster sources into JPEG, PNG,
// WebP, AVIF and TIFF. A Converter wires codecs, storage and observers into
// sessions; each session decodes its source once and serves any number of
// conversions from that decode.
package rawconverter

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skryldev/raw-converter/adapters/decoder"
	"github.com/Skryldev/raw-converter/adapters/encoder"
	"github.com/Skryldev/raw-converter/adapters/storage"
	"github.com/Skryldev/raw-converter/batch"
	"github.com/Skryldev/raw-converter/config"
	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
	"github.com/Skryldev/raw-converter/optimizer"
	"github.com/Skryldev/raw-converter/pipeline"
	"github.com/Skryldev/raw-converter/session"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	WebP = core.FormatWebP
	AVIF = core.FormatAVIF
	TIFF = core.FormatTIFF
)

const (
	persistRetries    = 2
	persistRetryDelay = 200 * time.Millisecond
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Converter is the primary entry point. It is safe for concurrent use; the
// setters are meant to be called before conversions start.
type Converter struct {
	cfg config.Config
	reg *core.DefaultRegistry

	mu      sync.RWMutex
	logger  core.Logger
	metrics core.MetricsCollector
	hooks   []core.Hook
	storage core.StorageAdapter
	// pipe is rebuilt whenever hooks or metrics change; sessions clone it.
	pipe *pipeline.Pipeline

	processed atomic.Int64
	failed    atomic.Int64
}

// New creates a Converter with the pure-Go codecs registered: JPEG, PNG,
// WebP and TIFF sources; JPEG, PNG and TIFF outputs. Register the libvips
// backend on Registry() for camera raw sources and WebP/AVIF output.
//
// With local storage configured, outputs are written below the batch's
// output location. S3 storage needs a client; see UseS3.
func New(cfg config.Config) (*Converter, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "rawconverter.new", err)
	}
	reg := core.NewRegistry()
	decoder.Register(reg, decoder.New())
	encoder.Register(reg, cfg.DefaultQuality)

	c := &Converter{cfg: cfg, reg: reg, logger: core.NopLogger{}}
	c.rebuildPipeline()
	if cfg.Storage == config.StorageLocal {
		local, err := storage.NewLocal("", os.FileMode(cfg.Local.Permissions))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryConfig, "rawconverter.new", err)
		}
		c.storage = local
	}
	return c, nil
}

// Config returns the configuration the Converter was built with.
func (c *Converter) Config() config.Config { return c.cfg }

// Registry returns the codec registry so callers can swap in other backends.
func (c *Converter) Registry() *core.DefaultRegistry { return c.reg }

// SetLogger attaches a structured logger.
func (c *Converter) SetLogger(l core.Logger) {
	c.mu.Lock()
	c.logger = l
	c.mu.Unlock()
}

// SetMetrics attaches a metrics collector.
func (c *Converter) SetMetrics(m core.MetricsCollector) {
	c.mu.Lock()
	c.metrics = m
	c.rebuildPipeline()
	c.mu.Unlock()
}

// AddHook registers an observer for session step events.
func (c *Converter) AddHook(h core.Hook) {
	c.mu.Lock()
	c.hooks = append(c.hooks, h)
	c.rebuildPipeline()
	c.mu.Unlock()
}

// SetStorage replaces the storage adapter used by ConvertTo and Batch.
func (c *Converter) SetStorage(st core.StorageAdapter) {
	c.mu.Lock()
	c.storage = st
	c.mu.Unlock()
}

// UseS3 switches storage to the configured S3 bucket through client.
func (c *Converter) UseS3(client storage.S3Client) error {
	s3, err := storage.NewS3(client, c.cfg.S3.Bucket)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryConfig, "rawconverter.use_s3", err)
	}
	c.SetStorage(s3)
	return nil
}

// RegisterDecoder registers a custom decoder for the given format.
func (c *Converter) RegisterDecoder(f core.Format, d core.Decoder) { c.reg.RegisterDecoder(f, d) }

// RegisterEncoder registers a custom encoder for the given format.
func (c *Converter) RegisterEncoder(f core.Format, e core.Encoder) { c.reg.RegisterEncoder(f, e) }

// Formats lists the output formats this Converter can currently encode.
func (c *Converter) Formats() []core.Format { return c.reg.EncodableFormats() }

func (c *Converter) deps(st core.StorageAdapter) session.Deps {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return session.Deps{
		Registry:       c.reg,
		Storage:        st,
		Logger:         c.logger,
		Metrics:        c.metrics,
		Hooks:          append([]core.Hook(nil), c.hooks...),
		DefaultQuality: c.cfg.DefaultQuality,
		MaxImageBytes:  c.cfg.MaxImageBytes,
		ChunkSize:      c.cfg.ChunkSize,
		PersistRetries: persistRetries,
		RetryDelay:     persistRetryDelay,
		Pipeline:       c.pipe,
	}
}

// rebuildPipeline must be called with c.mu held for writing.
func (c *Converter) rebuildPipeline() {
	c.pipe = session.NewPipeline(session.Deps{
		Metrics:        c.metrics,
		Hooks:          c.hooks,
		PersistRetries: persistRetries,
		RetryDelay:     persistRetryDelay,
	})
}

func (c *Converter) currentStorage() core.StorageAdapter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.storage
}

// NewSession returns an empty session wired to this Converter.
func (c *Converter) NewSession(opts ...session.Option) *session.Session {
	return session.New(c.deps(c.currentStorage()), opts...)
}

// Open creates a session and loads src into it. The caller must Close the
// session.
func (c *Converter) Open(ctx context.Context, src core.Source, opts ...session.Option) (*session.Session, error) {
	s := c.NewSession(opts...)
	if err := s.Load(ctx, src); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Convert loads src, converts it once and closes the session.
func (c *Converter) Convert(ctx context.Context, src core.Source, req core.ConversionRequest) (*core.ConversionResult, error) {
	s, err := c.Open(ctx, src)
	if err != nil {
		c.failed.Add(1)
		return nil, err
	}
	defer s.Close()

	res, err := s.Convert(ctx, req)
	c.count(err == nil)
	return res, err
}

// ConvertFormats loads src once and converts it to every request
// concurrently. Results are in request order; a failed request is reported in
// its result and does not affect the others.
func (c *Converter) ConvertFormats(ctx context.Context, src core.Source, reqs []core.ConversionRequest) ([]*core.ConversionResult, error) {
	s, err := c.Open(ctx, src)
	if err != nil {
		c.failed.Add(1)
		return nil, err
	}
	defer s.Close()

	results, err := s.ConvertAll(ctx, reqs)
	if err != nil {
		c.failed.Add(1)
		return nil, err
	}
	for _, r := range results {
		c.count(r.Success)
	}
	return results, nil
}

// Batch runs job with this Converter's sessions and storage. Concurrency
// and ItemTimeout left at zero take the configured values.
func (c *Converter) Batch(ctx context.Context, job batch.Job, opts ...batch.Option) (*batch.Result, error) {
	if job.Concurrency <= 0 {
		job.Concurrency = c.cfg.Concurrency
	}
	if job.ItemTimeout <= 0 {
		job.ItemTimeout = c.cfg.ItemTimeout()
	}
	c.mu.RLock()
	log := c.logger
	c.mu.RUnlock()

	base := []batch.Option{batch.WithLogger(log), batch.WithQueueSize(c.cfg.QueueSize)}
	if st := c.currentStorage(); st != nil {
		base = append(base, batch.WithStorage(st))
	}
	sched := batch.New(func(st core.StorageAdapter) *session.Session {
		return session.New(c.deps(st))
	}, append(base, opts...)...)

	res, err := sched.Run(ctx, job)
	if err != nil {
		return nil, err
	}
	c.processed.Add(int64(res.Summary.Processed))
	c.failed.Add(int64(res.Summary.Errors))
	return res, nil
}

// Optimize loads src only far enough to read its dimensions and recommends
// settings for usage.
func (c *Converter) Optimize(ctx context.Context, src core.Source, usage optimizer.Usage) (*optimizer.Recommendation, error) {
	s, err := c.Open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Recommend(usage)
}

// Thumbnail loads src and returns its embedded preview without decoding
// the full image.
func (c *Converter) Thumbnail(ctx context.Context, src core.Source) (*core.ConversionResult, error) {
	s, err := c.Open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Thumbnail(ctx)
}

// Stats returns how many conversions succeeded and failed since New.
func (c *Converter) Stats() (processed, errors int64) {
	return c.processed.Load(), c.failed.Load()
}

func (c *Converter) count(ok bool) {
	if ok {
		c.processed.Add(1)
		return
	}
	c.failed.Add(1)
}

// ── Source helpers ────────────────────────────────────────────────────────────

// FromFile creates a Source that reads path.
func FromFile(path string) core.Source { return core.Source{Path: path, Size: -1} }

// FromReader creates a Source from an io.Reader with unknown size.
func FromReader(r io.Reader) core.Source { return core.Source{Reader: r, Size: -1} }

// FromReaderWithMeta creates a Source with size, content type and name hints.
func FromReaderWithMeta(r io.Reader, size int64, contentType, name string) core.Source {
	return core.Source{Reader: r, Size: size, ContentType: contentType, Name: name}
}
