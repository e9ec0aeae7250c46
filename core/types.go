package core

import (
	"fmt"
	"io"
	"path/filepath"
	"time"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatAVIF    Format = "avif"
	FormatTIFF    Format = "tiff"
	FormatRAW     Format = "raw" // camera raw; source only
	FormatUnknown Format = "unknown"
)

// ColorSpace represents the image colour model.
type ColorSpace string

const (
	ColorSpaceRGB  ColorSpace = "rgb"
	ColorSpaceRGBA ColorSpace = "rgba"
	ColorSpaceCMYK ColorSpace = "cmyk"
	ColorSpaceGray ColorSpace = "gray"
)

// Dimensions is a width/height pair in pixels.
type Dimensions struct {
	Width  int
	Height int
}

// Megapixels returns width×height / 1e6.
func (d Dimensions) Megapixels() float64 {
	return float64(d.Width) * float64(d.Height) / 1e6
}

// Empty reports whether either axis is not positive.
func (d Dimensions) Empty() bool { return d.Width <= 0 || d.Height <= 0 }

func (d Dimensions) String() string { return fmt.Sprintf("%dx%d", d.Width, d.Height) }

// Metadata holds information known about a source after load, before the
// pixel data is decoded.
type Metadata struct {
	Width       int
	Height      int
	Format      Format
	ColorSpace  ColorSpace
	HasAlpha    bool
	SizeBytes   int64
	Orientation int // EXIF orientation tag (1-8)

	// Camera fields; zero when the source carries none.
	Make         string
	Model        string
	Software     string
	ISO          float64
	ShutterSpeed float64 // seconds
	Aperture     float64 // f-number
	FocalLength  float64 // mm
	Timestamp    time.Time
	LensMake     string
	LensModel    string
}

// Dimensions returns the metadata's width and height.
func (m Metadata) Dimensions() Dimensions { return Dimensions{Width: m.Width, Height: m.Height} }

// DecodeParams adjusts how the decoder develops the source. They are fixed
// once the session has decoded.
type DecodeParams struct {
	Brightness float64 // linear multiplier; 0 means 1.0
	OutputBPS  int     // 8 or 16; 0 means 8
	HalfSize   bool    // decode at half resolution
	AutoRotate bool    // apply the EXIF orientation
}

// Source abstracts where raw bytes come from (file path or reader).
type Source struct {
	Path        string    // read from disk when Reader is nil
	Reader      io.Reader // takes precedence over Path
	ContentType string    // optional hint
	Name        string    // optional logical name / filename
	Size        int64     // -1 if unknown
}

// Identifier names the source for results and logs.
func (s Source) Identifier() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Path != "":
		return s.Path
	}
	return "source"
}

// Ext returns the extension hint of the source without the dot.
func (s Source) Ext() string {
	name := s.Name
	if name == "" {
		name = s.Path
	}
	ext := filepath.Ext(name)
	if ext == "" {
		return ""
	}
	return ext[1:]
}

// ConversionResult is returned to the caller for every conversion attempt.
type ConversionResult struct {
	Success bool
	Err     error // set when Success is false

	Format     Format
	Output     []byte
	OutputPath string // set when the output was persisted

	OriginalDimensions Dimensions
	OutputDimensions   Dimensions
	OriginalByteSize   int64
	CompressedByteSize int64
	CompressionRatio   float64 // OriginalByteSize / CompressedByteSize

	// Time spent in the call, including the decode when this call ran it.
	// Persisting is not included.
	ProcessingTime time.Duration
	ThroughputMBps float64 // OriginalByteSize per second of ProcessingTime
	FromCache      bool    // decode was reused rather than executed by this call
}

// ProcessingTimeMs returns the processing time in fractional milliseconds.
func (r *ConversionResult) ProcessingTimeMs() float64 {
	return float64(r.ProcessingTime) / float64(time.Millisecond)
}

// RatioString formats the compression ratio with two decimals.
func (r *ConversionResult) RatioString() string {
	return fmt.Sprintf("%.2f", r.CompressionRatio)
}

// StorageKey uniquely identifies a stored image.
type StorageKey struct {
	Bucket string
	Path   string
}
