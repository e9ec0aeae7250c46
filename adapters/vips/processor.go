package vips

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/raw-converter/adapters/decoder"
	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	DefaultQuality int
	MaxCacheSize   int
	MaxWorkers     int
	ReportLeaks    bool
}

// Backend is a unified libvips-powered Decoder and Encoder.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = core.DefaultQuality
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatTIFF, core.FormatAVIF, core.FormatRAW:
		return true
	}
	return false
}

// handle owns the ImageRef opened by Load. Decode works on copies so the
// handle stays valid until Release.
type handle struct {
	mu   sync.Mutex
	ref  *govips.ImageRef
	exif *decoder.EXIF
	meta core.Metadata
}

func (h *handle) Metadata() core.Metadata { return h.meta }

func (b *Backend) Load(ctx context.Context, raw []byte, format core.Format) (core.Handle, error) {
	const op = "vips.load"
	if err := ctx.Err(); err != nil {
		return nil, apperrors.LoadError(op, err)
	}
	if len(raw) == 0 {
		return nil, apperrors.LoadError(op, apperrors.ErrEmptyInput)
	}

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.LoadError(op, err)
	}

	detected := vipsFormatToCore(ref.Format())
	if format == core.FormatRAW || detected == core.FormatUnknown {
		detected = format
	}
	meta := core.Metadata{
		Width:       ref.Width(),
		Height:      ref.Height(),
		Format:      detected,
		ColorSpace:  vipsInterpretationToColorSpace(ref.Interpretation()),
		HasAlpha:    ref.HasAlpha(),
		SizeBytes:   int64(len(raw)),
		Orientation: ref.Orientation(),
		Make:         exifString(ref, "exif-ifd0-Make"),
		Model:        exifString(ref, "exif-ifd0-Model"),
		Software:     exifString(ref, "exif-ifd0-Software"),
		ISO:          exifNumber(ref, "exif-ifd2-ISOSpeedRatings"),
		ShutterSpeed: exifNumber(ref, "exif-ifd2-ExposureTime"),
		Aperture:     exifNumber(ref, "exif-ifd2-FNumber"),
		FocalLength:  exifNumber(ref, "exif-ifd2-FocalLength"),
		Timestamp:    exifTime(ref, "exif-ifd2-DateTimeOriginal", "exif-ifd0-DateTime"),
		LensMake:     exifString(ref, "exif-ifd2-LensMake"),
		LensModel:    exifString(ref, "exif-ifd2-LensModel"),
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		ref.Close()
		return nil, apperrors.LoadError(op, apperrors.ErrInvalidDimensions)
	}
	// Fill what libvips left empty from the EXIF block itself, which also
	// carries the embedded preview.
	x := decoder.ReadEXIF(raw)
	x.Apply(&meta)
	return &handle{ref: ref, exif: x, meta: meta}, nil
}

// Thumbnail returns the JPEG preview embedded in the source's EXIF block.
func (b *Backend) Thumbnail(ctx context.Context, h core.Handle) (core.Thumbnail, error) {
	hd, ok := h.(*handle)
	if !ok || hd == nil {
		return core.Thumbnail{}, apperrors.ErrInvalidState
	}
	if err := ctx.Err(); err != nil {
		return core.Thumbnail{}, err
	}
	hd.mu.Lock()
	x := hd.exif
	hd.mu.Unlock()
	return x.Thumbnail()
}

func (b *Backend) Decode(ctx context.Context, h core.Handle, params core.DecodeParams) (core.Raster, error) {
	const op = "vips.decode"
	hd, ok := h.(*handle)
	if !ok || hd == nil {
		return nil, apperrors.DecodeError(op, apperrors.ErrInvalidState)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.DecodeError(op, err)
	}

	hd.mu.Lock()
	if hd.ref == nil {
		hd.mu.Unlock()
		return nil, apperrors.DecodeError(op, apperrors.ErrInvalidState)
	}
	ref, err := hd.ref.Copy()
	hd.mu.Unlock()
	if err != nil {
		return nil, apperrors.DecodeError(op, err)
	}

	if err := develop(ref, params); err != nil {
		ref.Close()
		return nil, apperrors.DecodeError(op, err)
	}
	r := &Raster{ref: ref}
	runtime.SetFinalizer(r, func(r *Raster) { r.ref.Close() })
	return r, nil
}

func (b *Backend) Release(h core.Handle) error {
	hd, ok := h.(*handle)
	if !ok || hd == nil {
		return nil
	}
	hd.mu.Lock()
	defer hd.mu.Unlock()
	if hd.ref != nil {
		hd.ref.Close()
		hd.ref = nil
	}
	hd.exif = nil
	return nil
}

func develop(ref *govips.ImageRef, p core.DecodeParams) error {
	if p.AutoRotate {
		if err := ref.AutoRotate(); err != nil {
			return fmt.Errorf("auto-rotate: %w", err)
		}
	}
	if p.HalfSize {
		if err := ref.Resize(0.5, govips.KernelLanczos3); err != nil {
			return fmt.Errorf("half-size: %w", err)
		}
	}
	if p.Brightness > 0 && p.Brightness != 1 {
		if err := ref.Linear1(p.Brightness, 0); err != nil {
			return fmt.Errorf("brightness: %w", err)
		}
		if err := ref.Cast(govips.BandFormatUchar); err != nil {
			return fmt.Errorf("brightness cast: %w", err)
		}
	}
	if p.OutputBPS == 16 {
		if err := ref.Cast(govips.BandFormatUshort); err != nil {
			return fmt.Errorf("16-bit cast: %w", err)
		}
	}
	return nil
}

// ─── Encoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanEncode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatAVIF, core.FormatTIFF:
		return true
	}
	return false
}

func (b *Backend) Encode(ctx context.Context, r core.Raster, opts core.EncodeOptions) ([]byte, core.Dimensions, error) {
	op := "vips.encode." + string(opts.Format)
	if err := ctx.Err(); err != nil {
		return nil, core.Dimensions{}, apperrors.EncodeError(op, err)
	}

	vr, ok := r.(*Raster)
	if !ok || vr == nil {
		return nil, core.Dimensions{}, apperrors.EncodeError(op,
			fmt.Errorf("raster must be decoded with the vips backend first"))
	}

	// Work on a copy; the shared raster is read by sibling encodes.
	ref, err := vr.copy()
	if err != nil {
		return nil, core.Dimensions{}, apperrors.EncodeError(op, err)
	}
	defer ref.Close()

	if err := resize(ref, opts.Width, opts.Height); err != nil {
		return nil, core.Dimensions{}, apperrors.EncodeError(op, err)
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = b.cfg.DefaultQuality
	}

	var buf []byte
	switch opts.Format {
	case core.FormatJPEG:
		ep := govips.NewJpegExportParams()
		ep.Quality = quality
		ep.StripMetadata = opts.StripMetadata
		ep.Interlace = opts.Progressive
		ep.SubsampleMode = jpegSubsample(opts.ChromaSubsampling)
		buf, _, err = ref.ExportJpeg(ep)

	case core.FormatPNG:
		ep := govips.NewPngExportParams()
		ep.StripMetadata = opts.StripMetadata
		ep.Interlace = opts.Progressive
		if opts.CompressionLevel >= 0 {
			ep.Compression = opts.CompressionLevel
		}
		buf, _, err = ref.ExportPng(ep)

	case core.FormatWebP:
		ep := govips.NewWebpExportParams()
		ep.Quality = quality
		ep.Lossless = opts.Lossless
		ep.StripMetadata = opts.StripMetadata
		if opts.Effort >= 0 {
			ep.ReductionEffort = opts.Effort
		}
		buf, _, err = ref.ExportWebp(ep)

	case core.FormatAVIF:
		ep := govips.NewAvifExportParams()
		ep.Quality = quality
		ep.Lossless = opts.Lossless
		ep.StripMetadata = opts.StripMetadata
		if opts.Effort >= 0 {
			ep.Effort = opts.Effort
		}
		buf, _, err = ref.ExportAvif(ep)

	case core.FormatTIFF:
		ep := govips.NewTiffExportParams()
		ep.Quality = quality
		ep.StripMetadata = opts.StripMetadata
		ep.Compression = govips.TiffCompressionDeflate
		if !opts.Lossless && opts.CompressionLevel < 0 {
			ep.Compression = govips.TiffCompressionJpeg
		}
		buf, _, err = ref.ExportTiff(ep)

	default:
		return nil, core.Dimensions{}, apperrors.EncodeError(op,
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, opts.Format))
	}
	if err != nil {
		return nil, core.Dimensions{}, apperrors.EncodeError(op, err)
	}
	return buf, core.Dimensions{Width: ref.Width(), Height: ref.Height()}, nil
}

// resize scales ref to exactly w×h. Zero on both axes keeps the size.
func resize(ref *govips.ImageRef, w, h int) error {
	sw, sh := ref.Width(), ref.Height()
	if (w == 0 && h == 0) || (w == sw && h == sh) {
		return nil
	}
	if w <= 0 || h <= 0 {
		return apperrors.ErrInvalidDimensions
	}
	hscale := float64(w) / float64(sw)
	vscale := float64(h) / float64(sh)
	if hscale == vscale {
		return ref.Resize(hscale, govips.KernelLanczos3)
	}
	return ref.ResizeWithVScale(hscale, vscale, govips.KernelLanczos3)
}

// jpegSubsample maps chroma modes onto libvips' on/off switch. 4:2:2 has no
// direct equivalent and is left to libvips.
func jpegSubsample(c core.ChromaSubsampling) govips.SubsampleMode {
	switch c {
	case core.Chroma444:
		return govips.VipsForeignSubsampleOff
	case core.Chroma420:
		return govips.VipsForeignSubsampleOn
	}
	return govips.VipsForeignSubsampleAuto
}

// ─── Raster ───────────────────────────────────────────────────────────────────

// Raster wraps a decoded *govips.ImageRef. It is never modified after
// Decode returns; encoders export from copies.
type Raster struct {
	mu  sync.Mutex
	ref *govips.ImageRef
}

func (v *Raster) Dimensions() core.Dimensions {
	v.mu.Lock()
	defer v.mu.Unlock()
	return core.Dimensions{Width: v.ref.Width(), Height: v.ref.Height()}
}

func (v *Raster) copy() (*govips.ImageRef, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ref.Copy()
}

// ─── RegisterVipsBackend ──────────────────────────────────────────────────────

// RegisterVipsBackend replaces the pure-Go codecs with libvips for every
// format it handles, including camera raw sources and WebP/AVIF output.
func RegisterVipsBackend(reg core.Registry, b *Backend) {
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatTIFF, core.FormatAVIF, core.FormatRAW} {
		reg.RegisterDecoder(f, b)
	}
	for _, f := range core.OutputFormats() {
		reg.RegisterEncoder(f, b)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func vipsFormatToCore(f govips.ImageType) core.Format {
	switch f {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	case govips.ImageTypeTIFF:
		return core.FormatTIFF
	case govips.ImageTypeAVIF:
		return core.FormatAVIF
	default:
		return core.FormatUnknown
	}
}

func vipsInterpretationToColorSpace(i govips.Interpretation) core.ColorSpace {
	switch i {
	case govips.InterpretationSRGB, govips.InterpretationRGB16:
		return core.ColorSpaceRGB
	case govips.InterpretationBW:
		return core.ColorSpaceGray
	case govips.InterpretationCMYK:
		return core.ColorSpaceCMYK
	default:
		return core.ColorSpaceRGB
	}
}

// exifString reads a libvips EXIF field and drops the type annotation libvips
// appends, e.g. "Canon (Canon, ASCII, 6 components, 6 bytes)".
func exifString(ref *govips.ImageRef, field string) string {
	v := ref.GetString(field)
	if i := strings.Index(v, " ("); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// exifNumber reads the raw value libvips records next to the formatted one,
// e.g. "1/200 sec. (1/200, Rational, 1 components, 8 bytes)" gives 0.005.
func exifNumber(ref *govips.ImageRef, field string) float64 {
	v := ref.GetString(field)
	i := strings.Index(v, " (")
	if i < 0 {
		return 0
	}
	raw := v[i+2:]
	if j := strings.IndexAny(raw, ", )"); j >= 0 {
		raw = raw[:j]
	}
	if num, den, ok := strings.Cut(raw, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		return n / d
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return f
}

// exifTime parses the first EXIF date field that is present.
func exifTime(ref *govips.ImageRef, fields ...string) time.Time {
	for _, f := range fields {
		if t, err := time.ParseInLocation("2006:01:02 15:04:05", exifString(ref, f), time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// compile-time interface checks
var (
	_ core.Decoder         = (*Backend)(nil)
	_ core.ThumbnailReader = (*Backend)(nil)
	_ core.Encoder         = (*Backend)(nil)
	_ core.Raster          = (*Raster)(nil)
)
