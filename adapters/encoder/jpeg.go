package encoder

import (
	"bytes"
	"context"
	"image/jpeg"

	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
)

// JPEG encodes rasters to baseline JPEG with image/jpeg. The standard encoder
// always writes 4:2:0 chroma and no progressive scans, so those options are
// accepted and ignored.
type JPEG struct {
	DefaultQuality int // used when EncodeOptions.Quality == 0
}

func NewJPEG(defaultQuality int) *JPEG {
	if defaultQuality <= 0 {
		defaultQuality = core.DefaultQuality
	}
	return &JPEG{DefaultQuality: defaultQuality}
}

func (j *JPEG) CanEncode(format core.Format) bool {
	return format == core.FormatJPEG
}

func (j *JPEG) Encode(ctx context.Context, r core.Raster, opts core.EncodeOptions) ([]byte, core.Dimensions, error) {
	const op = "jpeg.encode"
	src, dims, err := prepare(ctx, op, r, opts)
	if err != nil {
		return nil, core.Dimensions{}, err
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = j.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, core.Dimensions{}, apperrors.EncodeError(op, err)
	}
	return buf.Bytes(), dims, nil
}
