// Package decoder provides a pure-Go Decoder for raster sources.
package decoder

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"sync/atomic"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
)

// Go decodes JPEG, PNG, WebP and TIFF sources with the standard library and
// golang.org/x/image. Camera raw needs the vips backend.
type Go struct {
	released atomic.Int64
}

// New returns a pure-Go decoder.
func New() *Go { return &Go{} }

func (g *Go) CanDecode(format core.Format) bool {
	switch format {
	case core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatTIFF:
		return true
	}
	return false
}

// handle keeps the source bytes until Decode develops them.
type handle struct {
	raw  []byte
	exif *EXIF
	meta core.Metadata
}

func (h *handle) Metadata() core.Metadata { return h.meta }

// Raster is a decoded image held in memory.
type Raster struct {
	img image.Image
}

// NewRaster wraps img as a core.Raster.
func NewRaster(img image.Image) *Raster { return &Raster{img: img} }

func (r *Raster) Image() image.Image { return r.img }

func (r *Raster) Dimensions() core.Dimensions {
	b := r.img.Bounds()
	return core.Dimensions{Width: b.Dx(), Height: b.Dy()}
}

// Load reads only the header so a corrupt or unsupported file fails before any
// pixel work.
func (g *Go) Load(ctx context.Context, raw []byte, format core.Format) (core.Handle, error) {
	const op = "decoder.load"
	if err := ctx.Err(); err != nil {
		return nil, apperrors.LoadError(op, err)
	}
	if len(raw) == 0 {
		return nil, apperrors.LoadError(op, apperrors.ErrEmptyInput)
	}
	if !g.CanDecode(format) {
		return nil, apperrors.LoadError(op, apperrors.ErrUnsupportedFormat)
	}

	cfg, err := decodeConfig(raw, format)
	if err != nil {
		return nil, apperrors.LoadError(op, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, apperrors.LoadError(op, apperrors.ErrInvalidDimensions)
	}

	hd := &handle{
		raw: raw,
		meta: core.Metadata{
			Width:       cfg.Width,
			Height:      cfg.Height,
			Format:      format,
			ColorSpace:  colorSpaceOf(cfg.ColorModel),
			HasAlpha:    modelHasAlpha(cfg.ColorModel),
			SizeBytes:   int64(len(raw)),
			Orientation: 1,
		},
	}
	if format == core.FormatJPEG || format == core.FormatTIFF {
		hd.exif = ReadEXIF(raw)
		hd.exif.Apply(&hd.meta)
	}
	return hd, nil
}

// Decode develops the full image and applies params.
func (g *Go) Decode(ctx context.Context, h core.Handle, params core.DecodeParams) (core.Raster, error) {
	const op = "decoder.decode"
	hd, ok := h.(*handle)
	if !ok || hd == nil {
		return nil, apperrors.DecodeError(op, apperrors.ErrInvalidState)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.DecodeError(op, err)
	}

	img, err := decodeImage(hd.raw, hd.meta.Format)
	if err != nil {
		return nil, apperrors.DecodeError(op, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.DecodeError(op, err)
	}
	return NewRaster(develop(img, hd.meta.Orientation, params)), nil
}

// Thumbnail returns the JPEG preview from the source's EXIF block.
func (g *Go) Thumbnail(ctx context.Context, h core.Handle) (core.Thumbnail, error) {
	hd, ok := h.(*handle)
	if !ok || hd == nil {
		return core.Thumbnail{}, apperrors.ErrInvalidState
	}
	if err := ctx.Err(); err != nil {
		return core.Thumbnail{}, err
	}
	return hd.exif.Thumbnail()
}

// Release drops the source bytes.
func (g *Go) Release(h core.Handle) error {
	if hd, ok := h.(*handle); ok && hd != nil {
		hd.raw, hd.exif = nil, nil
		g.released.Add(1)
	}
	return nil
}

// Released reports how many handles have been released.
func (g *Go) Released() int64 { return g.released.Load() }

func decodeConfig(raw []byte, format core.Format) (image.Config, error) {
	r := bytes.NewReader(raw)
	switch format {
	case core.FormatJPEG:
		return jpeg.DecodeConfig(r)
	case core.FormatPNG:
		return png.DecodeConfig(r)
	case core.FormatWebP:
		return webp.DecodeConfig(r)
	case core.FormatTIFF:
		return tiff.DecodeConfig(r)
	}
	return image.Config{}, apperrors.ErrUnsupportedFormat
}

func decodeImage(raw []byte, format core.Format) (image.Image, error) {
	r := bytes.NewReader(raw)
	switch format {
	case core.FormatJPEG:
		return jpeg.Decode(r)
	case core.FormatPNG:
		return png.Decode(r)
	case core.FormatWebP:
		return webp.Decode(r)
	case core.FormatTIFF:
		return tiff.Decode(r)
	}
	return nil, apperrors.ErrUnsupportedFormat
}

// develop applies orientation, half-size, bit depth and brightness in that
// order.
func develop(img image.Image, orientation int, p core.DecodeParams) image.Image {
	if p.AutoRotate {
		img = Orient(img, orientation, p.OutputBPS == 16)
	}
	b := img.Bounds()
	if p.HalfSize && b.Dx() > 1 && b.Dy() > 1 {
		dst := image.NewNRGBA(image.Rect(0, 0, b.Dx()/2, b.Dy()/2))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
		b = img.Bounds()
	}
	if p.OutputBPS == 16 {
		dst := image.NewNRGBA64(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		img = dst
	}
	if p.Brightness > 0 && p.Brightness != 1 {
		img = brighten(img, p.Brightness)
	}
	return img
}

func brighten(img image.Image, factor float64) image.Image {
	b := img.Bounds()
	dst := image.NewNRGBA64(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	scale := func(v uint8, w uint8) (uint8, uint8) {
		x := (uint32(v)<<8 | uint32(w))
		f := float64(x) * factor
		if f > 0xffff {
			f = 0xffff
		}
		y := uint32(f)
		return uint8(y >> 8), uint8(y)
	}
	pix := dst.Pix
	for i := 0; i+7 < len(pix); i += 8 {
		pix[i], pix[i+1] = scale(pix[i], pix[i+1])
		pix[i+2], pix[i+3] = scale(pix[i+2], pix[i+3])
		pix[i+4], pix[i+5] = scale(pix[i+4], pix[i+5])
	}
	return dst
}

var (
	_ core.Decoder         = (*Go)(nil)
	_ core.ThumbnailReader = (*Go)(nil)
	_ core.ImageRaster     = (*Raster)(nil)
)

// Register installs d for every source format it handles.
func Register(reg core.Registry, d *Go) {
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatTIFF} {
		reg.RegisterDecoder(f, d)
	}
}
