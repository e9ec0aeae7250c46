// Package testsupport provides instrumented Decoder and Encoder stubs for
// package tests. The stubs never touch pixel data; rasters only carry
// dimensions.
package testsupport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
)

// Source builds stub source bytes that StubDecoder loads as a w×h image.
func Source(w, h int) []byte { return []byte(fmt.Sprintf("stub:%dx%d", w, h)) }

// Corrupt is source content StubDecoder rejects at load.
var Corrupt = []byte("corrupt")

// Gauge tracks how many operations are running and the high-water mark.
type Gauge struct {
	active atomic.Int64
	peak   atomic.Int64
}

func (g *Gauge) enter() {
	n := g.active.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (g *Gauge) leave() { g.active.Add(-1) }

// Active returns the number of operations in flight.
func (g *Gauge) Active() int64 { return g.active.Load() }

// Peak returns the most operations ever in flight at once.
func (g *Gauge) Peak() int64 { return g.peak.Load() }

// Handle is the stub load handle.
type Handle struct {
	meta     core.Metadata
	released atomic.Bool
}

func (h *Handle) Metadata() core.Metadata { return h.meta }

// Released reports whether the decoder released this handle.
func (h *Handle) Released() bool { return h.released.Load() }

// Raster is a dimension-only raster.
type Raster struct{ dims core.Dimensions }

// NewRaster returns a raster of the given size.
func NewRaster(w, h int) *Raster { return &Raster{dims: core.Dimensions{Width: w, Height: h}} }

func (r *Raster) Dimensions() core.Dimensions { return r.dims }

// StubDecoder loads Source(w, h) payloads and counts every call.
type StubDecoder struct {
	// Delay is slept inside Decode.
	Delay time.Duration
	// Gate, when non-nil, blocks Decode until it is closed.
	Gate chan struct{}
	// Started receives one value when each Decode begins, if non-nil.
	Started chan struct{}
	// FailDecodes makes the next N Decode calls fail.
	FailDecodes atomic.Int32

	Decodes  atomic.Int64
	Loads    atomic.Int64
	Releases atomic.Int64
	Gauge    Gauge

	mu      sync.Mutex
	handles []*Handle
}

// NewDecoder returns a StubDecoder.
func NewDecoder() *StubDecoder { return &StubDecoder{} }

func (d *StubDecoder) CanDecode(core.Format) bool { return true }

func (d *StubDecoder) Load(ctx context.Context, raw []byte, format core.Format) (core.Handle, error) {
	const op = "stub.load"
	d.Loads.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, apperrors.LoadError(op, err)
	}
	var w, h int
	if _, err := fmt.Sscanf(string(raw), "stub:%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
		return nil, apperrors.LoadError(op, fmt.Errorf("corrupt source: %q", truncate(raw)))
	}
	hd := &Handle{meta: core.Metadata{
		Width: w, Height: h, Format: format, SizeBytes: int64(len(raw)),
		ColorSpace: core.ColorSpaceRGB, Make: "Nikon", Model: "D850",
	}}
	d.mu.Lock()
	d.handles = append(d.handles, hd)
	d.mu.Unlock()
	return hd, nil
}

func (d *StubDecoder) Decode(ctx context.Context, h core.Handle, params core.DecodeParams) (core.Raster, error) {
	const op = "stub.decode"
	d.Decodes.Add(1)
	d.Gauge.enter()
	defer d.Gauge.leave()

	if d.Started != nil {
		d.Started <- struct{}{}
	}
	if d.Gate != nil {
		<-d.Gate
	}
	if d.Delay > 0 {
		time.Sleep(d.Delay)
	}

	hd, ok := h.(*Handle)
	if !ok {
		return nil, apperrors.DecodeError(op, apperrors.ErrInvalidState)
	}
	if hd.released.Load() {
		return nil, apperrors.DecodeError(op, errors.New("decode after release"))
	}
	if n := d.FailDecodes.Load(); n > 0 && d.FailDecodes.CompareAndSwap(n, n-1) {
		return nil, apperrors.DecodeError(op, errors.New("injected decode failure"))
	}
	dims := hd.meta.Dimensions()
	if params.HalfSize {
		dims = core.Dimensions{Width: dims.Width / 2, Height: dims.Height / 2}
	}
	return &Raster{dims: dims}, nil
}

func (d *StubDecoder) Release(h core.Handle) error {
	if hd, ok := h.(*Handle); ok {
		hd.released.Store(true)
	}
	d.Releases.Add(1)
	return nil
}

// Handles returns every handle the decoder produced.
func (d *StubDecoder) Handles() []*Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Handle(nil), d.handles...)
}

// StubEncoder emits a deterministic payload sized from the target
// dimensions: max(1, w*h/8) bytes.
type StubEncoder struct {
	Delay time.Duration
	// Gate, when non-nil, blocks Encode until it is closed.
	Gate chan struct{}
	// Fail maps formats to the error Encode returns for them.
	Fail map[core.Format]error
	// Empty makes Encode return no bytes.
	Empty bool
	// Panic makes Encode panic.
	Panic bool

	Encodes atomic.Int64
	Gauge   Gauge

	mu   sync.Mutex
	seen []core.EncodeOptions
}

// NewEncoder returns a StubEncoder.
func NewEncoder() *StubEncoder { return &StubEncoder{} }

func (e *StubEncoder) CanEncode(core.Format) bool { return true }

func (e *StubEncoder) Encode(ctx context.Context, r core.Raster, opts core.EncodeOptions) ([]byte, core.Dimensions, error) {
	e.Encodes.Add(1)
	e.Gauge.enter()
	defer e.Gauge.leave()

	e.mu.Lock()
	e.seen = append(e.seen, opts)
	e.mu.Unlock()

	if e.Panic {
		panic("stub encoder panic")
	}
	if e.Gate != nil {
		<-e.Gate
	}
	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return nil, core.Dimensions{}, apperrors.EncodeError("stub.encode", ctx.Err())
		}
	}
	if err := e.Fail[opts.Format]; err != nil {
		return nil, core.Dimensions{}, apperrors.EncodeError("stub.encode", err)
	}
	if _, ok := r.(*Raster); !ok {
		return nil, core.Dimensions{}, apperrors.EncodeError("stub.encode", apperrors.ErrEmptyInput)
	}
	dims := core.Dimensions{Width: opts.Width, Height: opts.Height}
	if e.Empty {
		return nil, dims, nil
	}
	return make([]byte, max(1, dims.Width*dims.Height/8)), dims, nil
}

// Seen returns the options of every Encode call.
func (e *StubEncoder) Seen() []core.EncodeOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]core.EncodeOptions(nil), e.seen...)
}

// Registry returns a registry with dec for every source format and enc for
// every output format.
func Registry(dec core.Decoder, enc core.Encoder) *core.DefaultRegistry {
	reg := core.NewRegistry()
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatTIFF, core.FormatRAW, core.FormatUnknown} {
		reg.RegisterDecoder(f, dec)
	}
	for _, f := range core.OutputFormats() {
		reg.RegisterEncoder(f, enc)
	}
	return reg
}

func truncate(b []byte) string {
	if len(b) > 16 {
		b = b[:16]
	}
	return string(b)
}

var (
	_ core.Decoder = (*StubDecoder)(nil)
	_ core.Encoder = (*StubEncoder)(nil)
)
