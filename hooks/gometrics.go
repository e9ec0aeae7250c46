package hooks

import (
	"time"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/Skryldev/raw-converter/core"
)

// GoMetrics records session metrics into a go-metrics registry:
// one timer per step ("step.<name>"), a meter for encoded bytes, a gauge for
// the most recent raster size and one counter per error category.
type GoMetrics struct {
	reg metrics.Registry
}

// NewGoMetrics wraps reg; a nil reg uses metrics.DefaultRegistry.
func NewGoMetrics(reg metrics.Registry) *GoMetrics {
	if reg == nil {
		reg = metrics.DefaultRegistry
	}
	return &GoMetrics{reg: reg}
}

// Registry returns the underlying registry.
func (g *GoMetrics) Registry() metrics.Registry { return g.reg }

func (g *GoMetrics) RecordProcessingTime(stepName string, d interface{ Seconds() float64 }) {
	t := metrics.GetOrRegisterTimer("step."+stepName, g.reg)
	t.Update(time.Duration(d.Seconds() * float64(time.Second)))
}

func (g *GoMetrics) RecordThroughput(bytes int64) {
	metrics.GetOrRegisterMeter("encode.bytes", g.reg).Mark(bytes)
}

func (g *GoMetrics) RecordMemory(bytes int64) {
	metrics.GetOrRegisterGauge("decode.raster_bytes", g.reg).Update(bytes)
}

func (g *GoMetrics) RecordError(stepName string, category string) {
	metrics.GetOrRegisterCounter("step."+stepName+".errors", g.reg).Inc(1)
	if category != "" {
		metrics.GetOrRegisterCounter("errors."+category, g.reg).Inc(1)
	}
}

var _ core.MetricsCollector = (*GoMetrics)(nil)
