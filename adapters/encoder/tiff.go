package encoder

import (
	"bytes"
	"context"

	"golang.org/x/image/tiff"

	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
)

// TIFF encodes rasters with golang.org/x/image/tiff. Output is always
// lossless; compression level 0 writes uncompressed strips, anything else
// uses Deflate with the horizontal predictor.
type TIFF struct{}

func NewTIFF() *TIFF { return &TIFF{} }

func (t *TIFF) CanEncode(format core.Format) bool { return format == core.FormatTIFF }

func (t *TIFF) Encode(ctx context.Context, r core.Raster, opts core.EncodeOptions) ([]byte, core.Dimensions, error) {
	const op = "tiff.encode"
	src, dims, err := prepare(ctx, op, r, opts)
	if err != nil {
		return nil, core.Dimensions{}, err
	}

	topts := &tiff.Options{Compression: tiff.Deflate, Predictor: true}
	if opts.CompressionLevel == 0 {
		topts = &tiff.Options{Compression: tiff.Uncompressed}
	}

	var buf bytes.Buffer
	if err := tiff.Encode(&buf, src, topts); err != nil {
		return nil, core.Dimensions{}, apperrors.EncodeError(op, err)
	}
	return buf.Bytes(), dims, nil
}

var (
	_ core.Encoder = (*JPEG)(nil)
	_ core.Encoder = (*PNG)(nil)
	_ core.Encoder = (*TIFF)(nil)
)

// Register installs every pure-Go encoder into reg.
func Register(reg core.Registry, defaultQuality int) {
	reg.RegisterEncoder(core.FormatJPEG, NewJPEG(defaultQuality))
	reg.RegisterEncoder(core.FormatPNG, NewPNG())
	reg.RegisterEncoder(core.FormatTIFF, NewTIFF())
}
