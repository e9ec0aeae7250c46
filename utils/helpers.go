package utils

import (
	"bytes"
	"net/http"

	"github.com/Skryldev/raw-converter/core"
)

// DetectFormat sniffs the leading bytes of data and returns the source format.
// TIFF-structured camera raws (NEF, ARW, DNG, PEF) are reported as TIFF; use
// ResolveSourceFormat to combine the result with an extension hint.
func DetectFormat(data []byte) core.Format {
	if len(data) < 4 {
		return core.FormatUnknown
	}
	switch {
	// JPEG: FF D8 FF
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return core.FormatJPEG
	// PNG: 89 50 4E 47
	case data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return core.FormatPNG
	// WebP: RIFF....WEBP
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return core.FormatWebP
	// Canon CR3: ISO BMFF with the "crx " brand.
	case len(data) >= 12 && bytes.Equal(data[4:12], []byte("ftypcrx ")):
		return core.FormatRAW
	case bytes.HasPrefix(data, []byte("FUJIFILMCCD-RAW")),
		bytes.HasPrefix(data, []byte("IIRO")), bytes.HasPrefix(data, []byte("IIRS")),
		bytes.HasPrefix(data, []byte("MMOR")),
		bytes.HasPrefix(data, []byte("IIU\x00")),
		bytes.HasPrefix(data, []byte("FOVb")):
		return core.FormatRAW
	case bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")):
		// Canon CR2 carries "CR" right after the TIFF header.
		if len(data) >= 10 && data[8] == 'C' && data[9] == 'R' {
			return core.FormatRAW
		}
		return core.FormatTIFF
	}
	// Fallback to net/http sniffing.
	return ContentTypeToFormat(http.DetectContentType(data))
}

// ResolveSourceFormat combines a content-type hint, sniffed bytes and the
// file extension. The content type wins; a TIFF container named like a camera
// raw is treated as raw; an unrecognised signature falls back to the extension.
func ResolveSourceFormat(data []byte, contentType, ext string) core.Format {
	if contentType != "" {
		if f := ContentTypeToFormat(contentType); f != core.FormatUnknown {
			return f
		}
	}
	sniffed := DetectFormat(data)
	byExt, known := core.SourceFormatForExtension(ext)
	switch {
	case sniffed == core.FormatTIFF && byExt == core.FormatRAW:
		return core.FormatRAW
	case sniffed == core.FormatUnknown && known:
		return byExt
	}
	return sniffed
}

// ContentTypeToFormat maps MIME types to Format values.
func ContentTypeToFormat(ct string) core.Format {
	switch ct {
	case "image/jpeg", "image/jpg":
		return core.FormatJPEG
	case "image/png":
		return core.FormatPNG
	case "image/webp":
		return core.FormatWebP
	case "image/tiff":
		return core.FormatTIFF
	case "image/x-dcraw", "image/x-canon-cr2", "image/x-canon-cr3", "image/x-nikon-nef",
		"image/x-sony-arw", "image/x-adobe-dng", "image/x-fuji-raf":
		return core.FormatRAW
	}
	return core.FormatUnknown
}

// CloneBytes returns a copy of b (safe for use after the source buffer is released).
func CloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
