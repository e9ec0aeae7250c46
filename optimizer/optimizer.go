// Package optimizer recommends conversion settings from source dimensions
// and the intended use of the output.
package optimizer

import (
	"fmt"
	"strings"

	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
)

// Usage is the intended destination of the converted image.
type Usage string

const (
	UsageWeb     Usage = "web"
	UsagePrint   Usage = "print"
	UsageArchive Usage = "archive"
)

// Category buckets a source by megapixels.
type Category string

const (
	CategoryHigh   Category = "high-resolution"   // >= 24 MP
	CategoryMedium Category = "medium-resolution" // >= 8 MP
	CategoryLow    Category = "low-resolution"
)

const (
	highMegapixels   = 24.0
	mediumMegapixels = 8.0

	// WebLongEdge caps the long edge of web output.
	WebLongEdge = 2048
)

type settings struct {
	quality     int
	progressive bool
	chroma      core.ChromaSubsampling
}

var table = map[Usage]settings{
	UsageWeb:     {quality: 80, progressive: true, chroma: core.Chroma420},
	UsagePrint:   {quality: 95, progressive: false, chroma: core.Chroma422},
	UsageArchive: {quality: 98, progressive: false, chroma: core.Chroma444},
}

// Recommendation is a ready-to-use request plus the reasoning behind it.
type Recommendation struct {
	Category   Category
	Megapixels float64
	Usage      Usage
	Request    core.ConversionRequest
	Reasoning  []string
}

// ParseUsage accepts a usage name in any case.
func ParseUsage(s string) (Usage, error) {
	u := Usage(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := table[u]; !ok {
		return "", apperrors.InvalidOptionError("optimizer.usage", "unknown usage %q (want web, print or archive)", s)
	}
	return u, nil
}

// Categorize returns the resolution category for dims.
func Categorize(dims core.Dimensions) Category {
	switch mp := dims.Megapixels(); {
	case mp >= highMegapixels:
		return CategoryHigh
	case mp >= mediumMegapixels:
		return CategoryMedium
	}
	return CategoryLow
}

// Recommend returns JPEG settings for a source of the given dimensions.
func Recommend(dims core.Dimensions, usage Usage) (*Recommendation, error) {
	const op = "optimizer.recommend"
	if dims.Empty() {
		return nil, apperrors.InvalidOptionError(op, "dimensions %s must be positive", dims)
	}
	set, ok := table[usage]
	if !ok {
		return nil, apperrors.InvalidOptionError(op, "unknown usage %q (want web, print or archive)", usage)
	}

	cat := Categorize(dims)
	mp := dims.Megapixels()
	rec := &Recommendation{
		Category:   cat,
		Megapixels: mp,
		Usage:      usage,
		Request: core.ConversionRequest{
			Format:            core.FormatJPEG,
			Quality:           core.Int(set.quality),
			Progressive:       core.Bool(set.progressive),
			ChromaSubsampling: core.Chroma(set.chroma),
		},
	}

	because := fmt.Sprintf("%s source (%.1f MP) for %s use", cat, mp, usage)
	rec.Reasoning = append(rec.Reasoning,
		fmt.Sprintf("format jpeg: %s", because),
		fmt.Sprintf("quality %d: %s", set.quality, because),
		fmt.Sprintf("progressive %t: %s", set.progressive, because),
		fmt.Sprintf("chroma subsampling %s: %s", set.chroma, because),
	)

	if usage == UsageWeb && max(dims.Width, dims.Height) > WebLongEdge {
		if dims.Width >= dims.Height {
			rec.Request.Width = core.Int(WebLongEdge)
		} else {
			rec.Request.Height = core.Int(WebLongEdge)
		}
		rec.Reasoning = append(rec.Reasoning,
			fmt.Sprintf("long edge %dpx: %s exceeds %dpx", WebLongEdge, because, WebLongEdge))
	}
	return rec, nil
}
