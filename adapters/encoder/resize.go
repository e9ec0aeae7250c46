// Package encoder provides pure-Go encoders for JPEG, PNG and TIFF output.
package encoder

import (
	"context"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
)

// Resampler is the interpolator used when the requested size differs from the
// raster. Encoders never modify the raster itself.
var Resampler xdraw.Interpolator = xdraw.CatmullRom

// prepare validates the raster and returns the image to encode at the target
// size from opts.
func prepare(ctx context.Context, op string, r core.Raster, opts core.EncodeOptions) (image.Image, core.Dimensions, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.Dimensions{}, apperrors.EncodeError(op, err)
	}
	ir, ok := r.(core.ImageRaster)
	if !ok || ir.Image() == nil {
		return nil, core.Dimensions{}, apperrors.EncodeError(op, apperrors.ErrEmptyInput)
	}
	src := ir.Image()
	srcB := src.Bounds()

	target := core.Dimensions{Width: opts.Width, Height: opts.Height}
	if target.Width == 0 && target.Height == 0 {
		target = core.Dimensions{Width: srcB.Dx(), Height: srcB.Dy()}
	}
	if target.Empty() {
		return nil, core.Dimensions{}, apperrors.EncodeError(op, apperrors.ErrInvalidDimensions)
	}
	if target.Width == srcB.Dx() && target.Height == srcB.Dy() {
		return src, target, nil
	}

	dst := image.NewNRGBA(image.Rect(0, 0, target.Width, target.Height))
	Resampler.Scale(dst, dst.Bounds(), src, srcB, xdraw.Src, nil)
	return dst, target, nil
}
