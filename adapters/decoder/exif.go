package decoder

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"golang.org/x/image/draw"

	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
)

// EXIF holds the tags read from a source's EXIF block.
type EXIF struct {
	x *exif.Exif
}

// ReadEXIF parses the EXIF block of a JPEG or TIFF-based source. Sources
// without one, or with a block that fails to parse, return nil.
func ReadEXIF(raw []byte) (e *EXIF) {
	defer func() {
		// goexif indexes into tag data without bounds checks on some
		// malformed inputs.
		if recover() != nil {
			e = nil
		}
	}()
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil || x == nil {
		return nil
	}
	return &EXIF{x: x}
}

// Apply copies the camera fields into m. Fields already set are kept.
func (e *EXIF) Apply(m *core.Metadata) {
	if e == nil {
		return
	}
	setString(&m.Make, e.str(exif.Make))
	setString(&m.Model, e.str(exif.Model))
	setString(&m.Software, e.str(exif.Software))
	setString(&m.LensMake, e.str(exif.FieldName("LensMake")))
	setString(&m.LensModel, e.str(exif.FieldName("LensModel")))
	if o, ok := e.integer(exif.Orientation); ok && o >= 1 && o <= 8 && m.Orientation <= 1 {
		m.Orientation = o
	}
	if m.ISO == 0 {
		if v, ok := e.integer(exif.ISOSpeedRatings); ok {
			m.ISO = float64(v)
		}
	}
	setFloat(&m.ShutterSpeed, e.rat(exif.ExposureTime))
	setFloat(&m.Aperture, e.rat(exif.FNumber))
	setFloat(&m.FocalLength, e.rat(exif.FocalLength))
	if m.Timestamp.IsZero() {
		if t, err := e.x.DateTime(); err == nil {
			m.Timestamp = t
		}
	}
}

// Thumbnail returns the JPEG preview stored in IFD1.
func (e *EXIF) Thumbnail() (core.Thumbnail, error) {
	if e == nil {
		return core.Thumbnail{}, apperrors.ErrNoThumbnail
	}
	data, err := e.x.JpegThumbnail()
	if err != nil || len(data) == 0 {
		return core.Thumbnail{}, apperrors.ErrNoThumbnail
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return core.Thumbnail{}, fmt.Errorf("embedded thumbnail: %w", err)
	}
	return core.Thumbnail{
		Data:       bytes.Clone(data),
		Format:     core.FormatJPEG,
		Dimensions: core.Dimensions{Width: cfg.Width, Height: cfg.Height},
	}, nil
}

func (e *EXIF) tag(name exif.FieldName) *tiff.Tag {
	t, err := e.x.Get(name)
	if err != nil {
		return nil
	}
	return t
}

func (e *EXIF) str(name exif.FieldName) string {
	t := e.tag(name)
	if t == nil {
		return ""
	}
	v, err := t.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimRight(v, "\x00 ")
}

func (e *EXIF) integer(name exif.FieldName) (int, bool) {
	t := e.tag(name)
	if t == nil {
		return 0, false
	}
	v, err := t.Int(0)
	return v, err == nil
}

func (e *EXIF) rat(name exif.FieldName) float64 {
	t := e.tag(name)
	if t == nil {
		return 0
	}
	num, den, err := t.Rat2(0)
	if err != nil || den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if *dst == 0 {
		*dst = v
	}
}

// Orient returns img transformed so that EXIF orientation o displays
// upright. Orientations outside 2..8 return img unchanged. deep keeps 16 bits
// per channel.
func Orient(img image.Image, o int, deep bool) image.Image {
	if o < 2 || o > 8 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := w, h
	if o >= 5 {
		dw, dh = h, w
	}

	var (
		src, dst         []byte
		sstride, dstride int
		bpp              int
		out              image.Image
	)
	if deep {
		s := image.NewNRGBA64(image.Rect(0, 0, w, h))
		draw.Draw(s, s.Bounds(), img, b.Min, draw.Src)
		d := image.NewNRGBA64(image.Rect(0, 0, dw, dh))
		src, sstride, dst, dstride, bpp, out = s.Pix, s.Stride, d.Pix, d.Stride, 8, d
	} else {
		s := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(s, s.Bounds(), img, b.Min, draw.Src)
		d := image.NewNRGBA(image.Rect(0, 0, dw, dh))
		src, sstride, dst, dstride, bpp, out = s.Pix, s.Stride, d.Pix, d.Stride, 4, d
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := orientPoint(o, x, y, w, h)
			si := y*sstride + x*bpp
			di := dy*dstride + dx*bpp
			copy(dst[di:di+bpp], src[si:si+bpp])
		}
	}
	return out
}

// orientPoint maps source pixel (x, y) of a w×h image to its upright position.
func orientPoint(o, x, y, w, h int) (int, int) {
	switch o {
	case 2:
		return w - 1 - x, y
	case 3:
		return w - 1 - x, h - 1 - y
	case 4:
		return x, h - 1 - y
	case 5:
		return y, x
	case 6:
		return h - 1 - y, x
	case 7:
		return h - 1 - y, w - 1 - x
	case 8:
		return y, w - 1 - x
	}
	return x, y
}
