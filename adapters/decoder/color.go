package decoder

import (
	"image/color"

	"github.com/Skryldev/raw-converter/core"
)

// colorSpaceOf returns the colour space of a decoded colour model.
func colorSpaceOf(m color.Model) core.ColorSpace {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return core.ColorSpaceGray
	case color.CMYKModel:
		return core.ColorSpaceCMYK
	case color.RGBAModel, color.NRGBAModel, color.RGBA64Model, color.NRGBA64Model:
		return core.ColorSpaceRGBA
	}
	return core.ColorSpaceRGB
}

func modelHasAlpha(m color.Model) bool {
	switch m {
	case color.RGBAModel, color.NRGBAModel, color.RGBA64Model, color.NRGBA64Model, color.AlphaModel, color.Alpha16Model:
		return true
	}
	// Paletted PNGs may carry transparency.
	if p, ok := m.(color.Palette); ok {
		for _, c := range p {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}
