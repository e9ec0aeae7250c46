package encoder

import (
	"bytes"
	"context"
	"image/png"

	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
)

// PNG encodes rasters to PNG. Interlacing is not available in image/png.
type PNG struct{}

func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanEncode(format core.Format) bool { return format == core.FormatPNG }

func (p *PNG) Encode(ctx context.Context, r core.Raster, opts core.EncodeOptions) ([]byte, core.Dimensions, error) {
	const op = "png.encode"
	src, dims, err := prepare(ctx, op, r, opts)
	if err != nil {
		return nil, core.Dimensions{}, err
	}

	enc := &png.Encoder{CompressionLevel: pngLevel(opts.CompressionLevel)}
	var buf bytes.Buffer
	if err := enc.Encode(&buf, src); err != nil {
		return nil, core.Dimensions{}, apperrors.EncodeError(op, err)
	}
	return buf.Bytes(), dims, nil
}

// pngLevel maps the 0-9 zlib scale onto the four levels image/png offers.
func pngLevel(level int) png.CompressionLevel {
	switch {
	case level < 0:
		return png.DefaultCompression
	case level == 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	}
	return png.BestCompression
}
