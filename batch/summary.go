package batch

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Skryldev/raw-converter/core"
)

// Summarize reduces the successful conversions of a run of total inputs.
// Averages are over successes only and are zero when there are none.
func Summarize(total int, ok []Success) Summary {
	sum := Summary{Total: total, Processed: len(ok), Errors: total - len(ok)}
	var ratios float64
	for _, s := range ok {
		r := s.Result
		if r == nil {
			continue
		}
		sum.TotalProcessingTime += r.ProcessingTime
		sum.TotalOriginalBytes += r.OriginalByteSize
		sum.TotalCompressedBytes += r.CompressedByteSize
		ratios += r.CompressionRatio
	}
	if n := len(ok); n > 0 {
		sum.AverageCompressionRatio = ratios / float64(n)
		sum.AveragePerFile = sum.TotalProcessingTime / time.Duration(n)
	}
	return sum
}

// OutputNames returns one output file name per input: the input's base name
// with the extension of format. A name already taken by an earlier input gets
// the first free "-N" suffix, so the result depends only on input order.
func OutputNames(inputs []core.Source, format core.Format) []string {
	ext := core.Extension(format)
	names := make([]string, len(inputs))
	taken := make(map[string]bool, len(inputs))
	for i, src := range inputs {
		base := filepath.Base(src.Identifier())
		base = strings.TrimSuffix(base, filepath.Ext(base))
		if base == "" || base == "." || base == string(filepath.Separator) {
			base = "image"
		}
		name := base + "." + ext
		for n := 1; taken[name]; n++ {
			name = base + "-" + strconv.Itoa(n) + "." + ext
		}
		taken[name] = true
		names[i] = name
	}
	return names
}
