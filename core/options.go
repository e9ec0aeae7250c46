package core

import (
	"math"

	apperrors "github.com/Skryldev/raw-converter/errors"
)

// ChromaSubsampling selects chroma downsampling for lossy encoders.
type ChromaSubsampling string

const (
	Chroma444 ChromaSubsampling = "4:4:4"
	Chroma422 ChromaSubsampling = "4:2:2"
	Chroma420 ChromaSubsampling = "4:2:0"
)

// Valid reports whether c is one of the known subsampling modes.
func (c ChromaSubsampling) Valid() bool {
	switch c {
	case Chroma444, Chroma422, Chroma420:
		return true
	}
	return false
}

// Option names a ConversionRequest field in capability lookups and errors.
type Option string

const (
	OptQuality          Option = "quality"
	OptProgressive      Option = "progressive"
	OptChroma           Option = "chromaSubsampling"
	OptCompressionLevel Option = "compressionLevel"
	OptEffort           Option = "effort"
	OptLossless         Option = "lossless"
)

// DefaultQuality is used when neither the request nor the config sets one.
const DefaultQuality = 85

// ConversionRequest is the caller-facing option set for one output. Nil
// pointer fields are absent and take encoder defaults.
type ConversionRequest struct {
	Format            Format
	Quality           *int
	Width             *int
	Height            *int
	Progressive       *bool
	ChromaSubsampling *ChromaSubsampling
	CompressionLevel  *int
	Effort            *int
	Lossless          *bool
	StripMetadata     bool
}

// Int returns a pointer to v, for optional request fields.
func Int(v int) *int { return &v }

// Bool returns a pointer to v, for optional request fields.
func Bool(v bool) *bool { return &v }

// Chroma returns a pointer to c, for optional request fields.
func Chroma(c ChromaSubsampling) *ChromaSubsampling { return &c }

// EncodeOptions is the normalized option set handed to an Encoder. Every
// field is resolved; encoders never see "absent".
type EncodeOptions struct {
	Format            Format
	Quality           int // 1-100
	Width, Height     int // target dimensions
	Progressive       bool
	ChromaSubsampling ChromaSubsampling // "" = encoder default
	CompressionLevel  int               // -1 = encoder default
	Effort            int               // -1 = encoder default
	Lossless          bool
	StripMetadata     bool
}

// ValidateRequest checks req without touching any image data.
func ValidateRequest(req ConversionRequest) error {
	const op = "validate"
	caps, ok := FormatCapabilities(req.Format)
	if !ok {
		return apperrors.InvalidOptionError(op, "unsupported output format %q", req.Format)
	}
	for _, set := range []struct {
		opt   Option
		isSet bool
	}{
		{OptQuality, req.Quality != nil},
		{OptProgressive, req.Progressive != nil},
		{OptChroma, req.ChromaSubsampling != nil},
		{OptCompressionLevel, req.CompressionLevel != nil},
		{OptEffort, req.Effort != nil},
		{OptLossless, req.Lossless != nil},
	} {
		if set.isSet && !caps.Supports(set.opt) {
			return apperrors.InvalidOptionError(op, "option %s is not supported for %s", set.opt, req.Format)
		}
	}
	if req.Quality != nil && (*req.Quality < 1 || *req.Quality > 100) {
		return apperrors.InvalidOptionError(op, "quality %d outside [1,100]", *req.Quality)
	}
	if req.Width != nil && *req.Width <= 0 {
		return apperrors.InvalidOptionError(op, "width %d must be positive", *req.Width)
	}
	if req.Height != nil && *req.Height <= 0 {
		return apperrors.InvalidOptionError(op, "height %d must be positive", *req.Height)
	}
	if req.ChromaSubsampling != nil && !req.ChromaSubsampling.Valid() {
		return apperrors.InvalidOptionError(op, "chroma subsampling %q not one of 4:4:4, 4:2:2, 4:2:0", *req.ChromaSubsampling)
	}
	if req.CompressionLevel != nil && (*req.CompressionLevel < 0 || *req.CompressionLevel > 9) {
		return apperrors.InvalidOptionError(op, "compression level %d outside [0,9]", *req.CompressionLevel)
	}
	if req.Effort != nil && (*req.Effort < 0 || *req.Effort > caps.MaxEffort) {
		return apperrors.InvalidOptionError(op, "effort %d outside [0,%d] for %s", *req.Effort, caps.MaxEffort, req.Format)
	}
	if req.ChromaSubsampling != nil && !caps.SupportsChroma(*req.ChromaSubsampling) {
		return apperrors.InvalidOptionError(op, "chroma subsampling %s is not supported for %s", *req.ChromaSubsampling, req.Format)
	}
	return nil
}

// ResolveDimensions applies the aspect rule: with only one axis requested the
// other follows the original aspect ratio; with both, the exact size is used
// even if that scales non-uniformly.
func ResolveDimensions(orig Dimensions, width, height *int) Dimensions {
	switch {
	case width == nil && height == nil:
		return orig
	case width != nil && height != nil:
		return Dimensions{Width: *width, Height: *height}
	case width != nil:
		h := 0
		if orig.Width > 0 {
			h = int(math.Round(float64(*width) * float64(orig.Height) / float64(orig.Width)))
		}
		return Dimensions{Width: *width, Height: max(h, 1)}
	default:
		w := 0
		if orig.Height > 0 {
			w = int(math.Round(float64(*height) * float64(orig.Width) / float64(orig.Height)))
		}
		return Dimensions{Width: max(w, 1), Height: *height}
	}
}

// Normalize resolves req against the decoded original dimensions into the
// options an encoder receives. req must already be valid.
func Normalize(req ConversionRequest, orig Dimensions, defaultQuality int) EncodeOptions {
	if defaultQuality < 1 || defaultQuality > 100 {
		defaultQuality = DefaultQuality
	}
	target := ResolveDimensions(orig, req.Width, req.Height)
	opts := EncodeOptions{
		Format:           req.Format,
		Quality:          defaultQuality,
		Width:            target.Width,
		Height:           target.Height,
		CompressionLevel: -1,
		Effort:           -1,
		StripMetadata:    req.StripMetadata,
	}
	if req.Quality != nil {
		opts.Quality = *req.Quality
	}
	if req.Progressive != nil {
		opts.Progressive = *req.Progressive
	}
	if req.ChromaSubsampling != nil {
		opts.ChromaSubsampling = *req.ChromaSubsampling
	}
	if req.CompressionLevel != nil {
		opts.CompressionLevel = *req.CompressionLevel
	}
	if req.Effort != nil {
		opts.Effort = *req.Effort
	}
	if req.Lossless != nil {
		opts.Lossless = *req.Lossless
	}
	return opts
}
