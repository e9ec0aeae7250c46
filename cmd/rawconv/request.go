package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Skryldev/raw-converter/core"
)

// requestFlags holds the encode options shared by convert and batch. Only
// flags the user actually set end up in the request.
type requestFlags struct {
	quality          int
	width            int
	height           int
	progressive      bool
	chroma           string
	compressionLevel int
	effort           int
	lossless         bool
	strip            bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVarP(&f.quality, "quality", "q", 0, "Quality 1-100 (lossy formats)")
	fs.IntVar(&f.width, "width", 0, "Target width; height follows the aspect ratio unless set")
	fs.IntVar(&f.height, "height", 0, "Target height; width follows the aspect ratio unless set")
	fs.BoolVar(&f.progressive, "progressive", false, "Progressive JPEG / interlaced PNG")
	fs.StringVar(&f.chroma, "chroma", "", "Chroma subsampling: 4:4:4, 4:2:2 or 4:2:0")
	fs.IntVar(&f.compressionLevel, "compression-level", 0, "Compression level 0-9 (PNG, TIFF)")
	fs.IntVar(&f.effort, "effort", 0, "Encoder effort (WebP 0-6, AVIF 0-9)")
	fs.BoolVar(&f.lossless, "lossless", false, "Lossless encoding (WebP, AVIF, TIFF)")
	fs.BoolVar(&f.strip, "strip", false, "Strip metadata from the output")
}

// build returns the request for format. Options the format does not accept
// are dropped so one flag set can drive several formats; range checks happen
// in the library.
func (f *requestFlags) build(cmd *cobra.Command, format core.Format) core.ConversionRequest {
	fs := cmd.Flags()
	set := func(flag string, opt core.Option) bool {
		return fs.Changed(flag) && core.SupportsOption(format, opt)
	}
	req := core.ConversionRequest{Format: format, StripMetadata: f.strip}
	if set("quality", core.OptQuality) {
		req.Quality = core.Int(f.quality)
	}
	if fs.Changed("width") {
		req.Width = core.Int(f.width)
	}
	if fs.Changed("height") {
		req.Height = core.Int(f.height)
	}
	if set("progressive", core.OptProgressive) {
		req.Progressive = core.Bool(f.progressive)
	}
	if set("chroma", core.OptChroma) {
		req.ChromaSubsampling = core.Chroma(core.ChromaSubsampling(f.chroma))
	}
	if set("compression-level", core.OptCompressionLevel) {
		req.CompressionLevel = core.Int(f.compressionLevel)
	}
	if set("effort", core.OptEffort) {
		req.Effort = core.Int(f.effort)
	}
	if set("lossless", core.OptLossless) {
		req.Lossless = core.Bool(f.lossless)
	}
	return req
}

func parseFormats(names []string) ([]core.Format, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one --format is required")
	}
	out := make([]core.Format, 0, len(names))
	seen := make(map[core.Format]bool, len(names))
	for _, n := range names {
		f, ok := core.ParseFormat(n)
		if !ok {
			return nil, fmt.Errorf("unknown output format %q", n)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}
