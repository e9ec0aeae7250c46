// Package session owns one source image from load to close: it decodes the
// source at most once and serves any number of conversions from that decode.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
	"github.com/Skryldev/raw-converter/hooks"
	"github.com/Skryldev/raw-converter/pipeline"
	"github.com/Skryldev/raw-converter/utils"
)

// State is a Session lifecycle position.
type State int32

const (
	StateEmpty State = iota
	StateLoaded
	StateProcessed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	case StateProcessed:
		return "processed"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Deps are the collaborators a Session uses. Registry is required.
type Deps struct {
	Registry core.Registry
	Storage  core.StorageAdapter
	Logger   core.Logger
	Metrics  core.MetricsCollector
	Hooks    []core.Hook

	DefaultQuality int
	MaxImageBytes  int64 // 0 = no limit
	ChunkSize      int

	// Transient storage failures are retried this many times.
	PersistRetries int
	RetryDelay     time.Duration

	// Pipeline, when set, is a configured step runner each session clones.
	// Hooks, Metrics and the retry fields are then not consulted.
	Pipeline *pipeline.Pipeline
}

// NewPipeline builds the step runner a session uses from deps.
func NewPipeline(deps Deps) *pipeline.Pipeline {
	p := pipeline.New().WithRetry(deps.PersistRetries, deps.RetryDelay)
	for _, h := range deps.Hooks {
		p.AddHook(h)
	}
	if deps.Metrics != nil {
		p.AddHook(hooks.NewMetricsHook(deps.Metrics))
	}
	return p
}

// Option configures a Session.
type Option func(*Session)

// WithID overrides the generated session id.
func WithID(id string) Option { return func(s *Session) { s.id = id } }

// WithFanOutLimit bounds how many encodes ConvertAll runs at once. Zero or
// less means one goroutine per request.
func WithFanOutLimit(n int) Option { return func(s *Session) { s.fanOutLimit = n } }

// WithDecodeParams presets the decode parameters.
func WithDecodeParams(p core.DecodeParams) Option { return func(s *Session) { s.params = p } }

// WithHook adds an observer to this session only.
func WithHook(h core.Hook) Option { return func(s *Session) { s.hooks = append(s.hooks, h) } }

// decoded is published once and never modified.
type decoded struct {
	raster core.Raster
	dims   core.Dimensions
	took   time.Duration
}

// Session is safe for concurrent use. Callers must Close it on every path.
type Session struct {
	id          string
	deps        Deps
	log         core.Logger
	pipe        *pipeline.Pipeline
	hooks       []core.Hook
	fanOutLimit int

	mu       sync.Mutex
	state    State
	loading  bool
	decoding bool
	source   string
	decoder  core.Decoder
	handle   core.Handle
	meta     core.Metadata
	params   core.DecodeParams

	// inflight counts operations holding a token; Close waits for it.
	inflight sync.WaitGroup
	flight   singleflight.Group
	raster   atomic.Pointer[decoded]
}

// New returns an empty Session.
func New(deps Deps, opts ...Option) *Session {
	if deps.Logger == nil {
		deps.Logger = core.NopLogger{}
	}
	if deps.DefaultQuality <= 0 {
		deps.DefaultQuality = core.DefaultQuality
	}
	s := &Session{
		id:   uuid.NewString(),
		deps: deps,
		log:  deps.Logger,
	}
	for _, o := range opts {
		o(s)
	}

	if deps.Pipeline != nil {
		s.pipe = deps.Pipeline.Clone()
	} else {
		s.pipe = NewPipeline(deps)
	}
	for _, h := range s.hooks {
		s.pipe.AddHook(h)
	}
	return s
}

// ID returns the session identifier used in logs and events.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SourceName returns the loaded source's identifier.
func (s *Session) SourceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Decoded reports whether a raster is cached.
func (s *Session) Decoded() bool { return s.raster.Load() != nil }

// begin takes an operation token. It fails once the session is closed and
// before it is loaded.
func (s *Session) begin(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return apperrors.AlreadyClosedError(op)
	case StateEmpty:
		return apperrors.NotLoadedError(op)
	}
	s.inflight.Add(1)
	return nil
}

func (s *Session) end() { s.inflight.Done() }

func (s *Session) event() core.StepEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.StepEvent{SessionID: s.id, Source: s.source, Format: s.meta.Format}
}

// Load reads src, detects its format and opens it with the matching decoder.
func (s *Session) Load(ctx context.Context, src core.Source) error {
	const op = "session.load"
	s.mu.Lock()
	switch {
	case s.state == StateClosed:
		s.mu.Unlock()
		return apperrors.AlreadyClosedError(op)
	case s.state != StateEmpty || s.loading:
		s.mu.Unlock()
		return apperrors.LoadError(op, apperrors.ErrAlreadyLoaded)
	}
	s.loading = true
	s.source = src.Identifier()
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.end()

	h, dec, err := s.open(ctx, src)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		return err
	}
	// Close ran while we were loading; hand the handle to it for release.
	s.decoder, s.handle = dec, h
	if s.state == StateClosed {
		return apperrors.AlreadyClosedError(op)
	}
	s.meta = h.Metadata()
	s.state = StateLoaded
	s.log.Debug("session.loaded",
		"session", s.id,
		"source", s.source,
		"format", s.meta.Format,
		"dimensions", s.meta.Dimensions().String(),
		"bytes", s.meta.SizeBytes,
	)
	return nil
}

func (s *Session) open(ctx context.Context, src core.Source) (core.Handle, core.Decoder, error) {
	const op = "session.load"
	var (
		raw []byte
		err error
	)
	switch {
	case src.Reader != nil:
		raw, err = utils.ReadAll(ctx, src.Reader, s.deps.MaxImageBytes, s.deps.ChunkSize)
	case src.Path != "":
		raw, err = utils.ReadFile(ctx, src.Path, s.deps.MaxImageBytes, s.deps.ChunkSize)
	default:
		err = apperrors.ErrEmptyInput
	}
	if err != nil {
		return nil, nil, apperrors.LoadError(op, err)
	}
	if len(raw) == 0 {
		return nil, nil, apperrors.LoadError(op, apperrors.ErrEmptyInput)
	}

	format := utils.ResolveSourceFormat(raw, src.ContentType, src.Ext())
	dec, ok := s.deps.Registry.DecoderFor(format)
	if !ok {
		return nil, nil, apperrors.LoadError(op, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}

	ev := core.StepEvent{SessionID: s.id, Source: src.Identifier(), Format: format, Bytes: int64(len(raw))}
	var h core.Handle
	_, err = s.pipe.Run(ctx, "load", ev, func(ctx context.Context, ev *core.StepEvent) error {
		var lerr error
		h, lerr = dec.Load(ctx, raw, format)
		if lerr != nil {
			return apperrors.LoadError(op, lerr)
		}
		m := h.Metadata()
		ev.Width, ev.Height = m.Width, m.Height
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &sizedHandle{Handle: h, size: int64(len(raw))}, dec, nil
}

// sizedHandle fills in SizeBytes when the decoder leaves it empty. Release
// passes the wrapped handle back to the decoder.
type sizedHandle struct {
	core.Handle
	size int64
}

func (h *sizedHandle) Metadata() core.Metadata {
	m := h.Handle.Metadata()
	if m.SizeBytes == 0 {
		m.SizeBytes = h.size
	}
	return m
}

// Metadata returns what is known about the source after load.
func (s *Session) Metadata() (core.Metadata, error) {
	const op = "session.metadata"
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return core.Metadata{}, apperrors.AlreadyClosedError(op)
	case StateEmpty:
		return core.Metadata{}, apperrors.NotLoadedError(op)
	}
	return s.meta, nil
}

// SetDecodeParams changes how the source will be decoded. It is only allowed
// between load and the first decode.
func (s *Session) SetDecodeParams(p core.DecodeParams) error {
	const op = "session.set_decode_params"
	if p.Brightness < 0 {
		return apperrors.InvalidOptionError(op, "brightness %.2f must not be negative", p.Brightness)
	}
	switch p.OutputBPS {
	case 0, 8, 16:
	default:
		return apperrors.InvalidOptionError(op, "output bits per sample %d not one of 8, 16", p.OutputBPS)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == StateClosed:
		return apperrors.AlreadyClosedError(op)
	case s.state == StateEmpty:
		return apperrors.NotLoadedError(op)
	case s.state == StateProcessed || s.decoding:
		return apperrors.LoadError(op, fmt.Errorf("%w: decode already started", apperrors.ErrInvalidState))
	}
	s.params = p
	return nil
}

// Process decodes the source if no decode has completed yet. Concurrent
// callers share a single decode.
func (s *Session) Process(ctx context.Context) error {
	if err := s.begin("session.process"); err != nil {
		return err
	}
	defer s.end()
	_, _, err := s.process(ctx)
	return err
}

// process returns the cached decode and whether it existed before the call.
// The caller must hold a token.
func (s *Session) process(ctx context.Context) (*decoded, bool, error) {
	if d := s.raster.Load(); d != nil {
		return d, true, nil
	}
	// The shared decode must outlive any one caller's context.
	detached := context.WithoutCancel(ctx)
	ch := s.flight.DoChan("decode", func() (any, error) {
		return s.decode(detached)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*decoded), false, nil
	case <-ctx.Done():
		return nil, false, apperrors.DecodeError("session.process", ctx.Err())
	}
}

func (s *Session) decode(ctx context.Context) (*decoded, error) {
	const op = "session.decode"
	if err := s.begin(op); err != nil {
		return nil, err
	}
	defer s.end()
	if d := s.raster.Load(); d != nil {
		return d, nil
	}

	s.mu.Lock()
	dec, h, params := s.decoder, s.handle, s.params
	s.decoding = true
	s.mu.Unlock()

	var r core.Raster
	took, err := s.pipe.Run(ctx, "decode", s.event(), func(ctx context.Context, ev *core.StepEvent) error {
		var derr error
		r, derr = dec.Decode(ctx, unwrapHandle(h), params)
		if derr != nil {
			return apperrors.DecodeError(op, derr)
		}
		if r == nil {
			return apperrors.DecodeError(op, apperrors.ErrEmptyOutput)
		}
		dims := r.Dimensions()
		ev.Width, ev.Height = dims.Width, dims.Height
		return nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.decoding = false
	if err != nil {
		s.log.Warn("session.decode.failed", "session", s.id, "source", s.source, "error", err.Error())
		return nil, err
	}
	d := &decoded{raster: r, dims: r.Dimensions(), took: took}
	s.raster.Store(d)
	if s.state == StateLoaded {
		s.state = StateProcessed
	}
	s.log.Debug("session.decoded",
		"session", s.id,
		"dimensions", d.dims.String(),
		"duration_ms", took.Milliseconds(),
	)
	return d, nil
}

func unwrapHandle(h core.Handle) core.Handle {
	if sh, ok := h.(*sizedHandle); ok {
		return sh.Handle
	}
	return h
}

// Close waits for in-flight operations, including decodes abandoned by a
// timed-out caller, then releases the decoder handle once.
func (s *Session) Close() error {
	const op = "session.close"
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return apperrors.AlreadyClosedError(op)
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.inflight.Wait()

	s.mu.Lock()
	dec, h := s.decoder, s.handle
	s.handle = nil
	s.mu.Unlock()
	s.raster.Store(nil)

	if h == nil {
		return nil
	}
	if err := dec.Release(unwrapHandle(h)); err != nil {
		s.log.Warn("session.release.failed", "session", s.id, "error", err.Error())
		return apperrors.Wrap(apperrors.CategoryDecode, "session.release", err)
	}
	s.log.Debug("session.closed", "session", s.id, "source", s.SourceName())
	return nil
}
