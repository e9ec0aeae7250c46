package core

import (
	"slices"
	"strings"
)

// Capabilities describes what an output format accepts.
type Capabilities struct {
	Format    Format
	Extension string
	MIMEType  string
	Options   []Option
	Chroma    []ChromaSubsampling // accepted values when OptChroma is supported
	MaxEffort int
	Lossy     bool
}

// Supports reports whether opt may be set for this format.
func (c Capabilities) Supports(opt Option) bool { return slices.Contains(c.Options, opt) }

// SupportsChroma reports whether the given subsampling mode is accepted.
func (c Capabilities) SupportsChroma(cs ChromaSubsampling) bool {
	return slices.Contains(c.Chroma, cs)
}

func (c Capabilities) clone() Capabilities {
	c.Options = slices.Clone(c.Options)
	c.Chroma = slices.Clone(c.Chroma)
	return c
}

// The tables below are built once at init and only ever handed out as copies.
var (
	outputCaps = map[Format]Capabilities{
		FormatJPEG: {
			Format: FormatJPEG, Extension: "jpg", MIMEType: "image/jpeg",
			Options: []Option{OptQuality, OptProgressive, OptChroma},
			Chroma:  []ChromaSubsampling{Chroma444, Chroma422, Chroma420},
			Lossy:   true,
		},
		FormatPNG: {
			Format: FormatPNG, Extension: "png", MIMEType: "image/png",
			Options: []Option{OptProgressive, OptCompressionLevel},
		},
		FormatWebP: {
			Format: FormatWebP, Extension: "webp", MIMEType: "image/webp",
			Options:   []Option{OptQuality, OptEffort, OptLossless},
			MaxEffort: 6,
			Lossy:     true,
		},
		FormatAVIF: {
			Format: FormatAVIF, Extension: "avif", MIMEType: "image/avif",
			Options:   []Option{OptQuality, OptChroma, OptEffort, OptLossless},
			Chroma:    []ChromaSubsampling{Chroma444, Chroma420},
			MaxEffort: 9,
			Lossy:     true,
		},
		FormatTIFF: {
			Format: FormatTIFF, Extension: "tiff", MIMEType: "image/tiff",
			Options: []Option{OptQuality, OptCompressionLevel, OptLossless},
		},
	}

	outputOrder = []Format{FormatJPEG, FormatPNG, FormatWebP, FormatAVIF, FormatTIFF}

	rawExtensions = []string{
		"3fr", "arw", "cr2", "cr3", "crw", "dcr", "dng", "erf", "iiq", "kdc",
		"mrw", "nef", "nrw", "orf", "pef", "raf", "rw2", "sr2", "srf", "srw", "x3f",
	}

	rasterExtensions = map[string]Format{
		"jpg":  FormatJPEG,
		"jpeg": FormatJPEG,
		"png":  FormatPNG,
		"webp": FormatWebP,
		"tif":  FormatTIFF,
		"tiff": FormatTIFF,
	}

	// cameras is a representative subset of the bodies the raw decoder is
	// known to handle, keyed "Make Model".
	cameras = []string{
		"Canon EOS 5D Mark IV",
		"Canon EOS 6D Mark II",
		"Canon EOS 90D",
		"Canon EOS R",
		"Canon EOS R5",
		"Canon EOS R6",
		"Fujifilm GFX 100S",
		"Fujifilm X-T4",
		"Fujifilm X-T5",
		"Fujifilm X100V",
		"Hasselblad X2D 100C",
		"Leica M11",
		"Leica Q2",
		"Nikon D750",
		"Nikon D850",
		"Nikon Z 6II",
		"Nikon Z 7II",
		"Nikon Z 9",
		"Olympus E-M1 Mark III",
		"OM Digital Solutions OM-1",
		"Panasonic DC-GH6",
		"Panasonic DC-S5",
		"Pentax K-1 Mark II",
		"Pentax K-3 Mark III",
		"Ricoh GR III",
		"Sony ILCE-7M3",
		"Sony ILCE-7M4",
		"Sony ILCE-7RM4",
		"Sony ILCE-7RM5",
		"Sony ILCE-1",
	}
)

// OutputFormats lists every format a conversion may target, in display order.
func OutputFormats() []Format { return slices.Clone(outputOrder) }

// FormatCapabilities returns the capability entry for an output format.
func FormatCapabilities(f Format) (Capabilities, bool) {
	c, ok := outputCaps[f]
	if !ok {
		return Capabilities{}, false
	}
	return c.clone(), true
}

// SupportsOption reports whether opt may be set when converting to f.
func SupportsOption(f Format, opt Option) bool {
	c, ok := outputCaps[f]
	return ok && c.Supports(opt)
}

// ParseFormat maps a user-supplied name or extension to an output format.
func ParseFormat(s string) (Format, bool) {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	switch s {
	case "jpg", "jpeg":
		return FormatJPEG, true
	case "tif", "tiff":
		return FormatTIFF, true
	}
	f := Format(s)
	_, ok := outputCaps[f]
	return f, ok
}

// Extension returns the file extension (without dot) for an output format.
func Extension(f Format) string {
	if c, ok := outputCaps[f]; ok {
		return c.Extension
	}
	return string(f)
}

// SourceExtensions lists every accepted source extension, sorted.
func SourceExtensions() []string {
	out := slices.Clone(rawExtensions)
	for ext := range rasterExtensions {
		out = append(out, ext)
	}
	slices.Sort(out)
	return out
}

// SourceFormatForExtension maps a source file extension to its format.
func SourceFormatForExtension(ext string) (Format, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if f, ok := rasterExtensions[ext]; ok {
		return f, true
	}
	if slices.Contains(rawExtensions, ext) {
		return FormatRAW, true
	}
	return FormatUnknown, false
}

// IsSupportedSource reports whether files with this extension can be loaded.
func IsSupportedSource(ext string) bool {
	_, ok := SourceFormatForExtension(ext)
	return ok
}

// SupportedCameras returns a copy of the known camera list.
func SupportedCameras() []string { return slices.Clone(cameras) }

// CameraCount returns the number of known cameras.
func CameraCount() int { return len(cameras) }

// IsCameraSupported matches make and model case-insensitively.
func IsCameraSupported(cameraMake, model string) bool {
	want := strings.ToLower(strings.TrimSpace(cameraMake) + " " + strings.TrimSpace(model))
	for _, c := range cameras {
		if strings.ToLower(c) == want {
			return true
		}
	}
	return false
}
