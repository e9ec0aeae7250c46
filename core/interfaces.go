package core

import (
	"context"
	"image"
	"io"
	"time"
)

// Handle is a decoder resource acquired by Load. It is exclusively owned by
// the session that loaded it and is given back through Decoder.Release.
type Handle interface {
	// Metadata describes the source as known after load.
	Metadata() Metadata
}

// Raster is an opaque decoded pixel buffer. Once returned by Decode it is
// never mutated and may be read by concurrent encoders.
type Raster interface {
	Dimensions() Dimensions
}

// Decoder turns source bytes into a Raster.
// Implementations live in adapters/decoder/ and adapters/vips/.
type Decoder interface {
	// Load parses enough of raw to validate it and returns a handle.
	Load(ctx context.Context, raw []byte, format Format) (Handle, error)
	// Decode develops the loaded source into a raster.
	Decode(ctx context.Context, h Handle, params DecodeParams) (Raster, error)
	// Release frees the resources behind h.
	Release(h Handle) error
	// CanDecode reports whether this decoder handles the given format hint.
	CanDecode(format Format) bool
}

// Thumbnail is a preview image embedded in a source, returned as stored.
type Thumbnail struct {
	Data       []byte
	Format     Format
	Dimensions Dimensions
}

// ThumbnailReader is implemented by decoders that can return the preview
// embedded in a source without developing the full image.
type ThumbnailReader interface {
	Thumbnail(ctx context.Context, h Handle) (Thumbnail, error)
}

// Encoder serialises a Raster into a concrete byte format.
// Implementations live in adapters/encoder/ and adapters/vips/.
type Encoder interface {
	// Encode must not mutate r. It resizes to opts.Width×opts.Height when those
	// differ from the raster's dimensions and returns the output dimensions.
	Encode(ctx context.Context, r Raster, opts EncodeOptions) ([]byte, Dimensions, error)
	CanEncode(format Format) bool
}

// StorageAdapter persists converted images and retrieves them later.
// Implementations live in adapters/storage/.
type StorageAdapter interface {
	Put(ctx context.Context, key StorageKey, r io.Reader, meta map[string]string) error
	Get(ctx context.Context, key StorageKey) (io.ReadCloser, error)
	Delete(ctx context.Context, key StorageKey) error
	Exists(ctx context.Context, key StorageKey) (bool, error)
}

// Locker is implemented by storage adapters that can reserve an output
// location for exclusive use by one batch.
type Locker interface {
	Lock(ctx context.Context, bucket string) (unlock func() error, err error)
}

// Preparer is implemented by storage adapters that need the output location
// to exist before writes begin.
type Preparer interface {
	Prepare(ctx context.Context, bucket string) error
}

// MetricsCollector receives performance observations from sessions.
type MetricsCollector interface {
	RecordProcessingTime(stepName string, d interface{ Seconds() float64 })
	RecordThroughput(bytes int64)
	RecordMemory(bytes int64)
	RecordError(stepName string, category string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// StepEvent describes the session step a hook is observing.
type StepEvent struct {
	SessionID string
	Source    string
	Format    Format
	Width     int
	Height    int
	Bytes     int64
}

// Hook is an optional observer invoked around session steps
// ("load", "decode", "encode", "persist", "thumbnail").
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, ev StepEvent)
	AfterStep(ctx context.Context, stepName string, ev StepEvent, d time.Duration, err error)
}

// Registry maps Format values to Decoder/Encoder implementations.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	EncoderFor(format Format) (Encoder, bool)
	RegisterDecoder(format Format, d Decoder)
	RegisterEncoder(format Format, e Encoder)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}

// ImageRaster is implemented by rasters backed by an in-memory image.Image.
// Pure-Go encoders accept any Raster that satisfies it.
type ImageRaster interface {
	Raster
	Image() image.Image
}
