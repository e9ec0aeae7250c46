package session_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Skryldev/raw-converter/adapters/decoder"
	"github.com/Skryldev/raw-converter/adapters/encoder"
	"github.com/Skryldev/raw-converter/adapters/storage"
	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
	"github.com/Skryldev/raw-converter/hooks"
	"github.com/Skryldev/raw-converter/internal/testsupport"
	"github.com/Skryldev/raw-converter/optimizer"
	"github.com/Skryldev/raw-converter/session"
)

func rawSource(w, h int) core.Source {
	return core.Source{Reader: bytes.NewReader(testsupport.Source(w, h)), Name: "scene.nef"}
}

func loaded(t *testing.T, deps session.Deps, w, h int, opts ...session.Option) *session.Session {
	t.Helper()
	s := session.New(deps, opts...)
	if err := s.Load(context.Background(), rawSource(w, h)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func stubDeps(dec *testsupport.StubDecoder, enc *testsupport.StubEncoder) session.Deps {
	return session.Deps{Registry: testsupport.Registry(dec, enc)}
}

func TestProcessDecodesOnce(t *testing.T) {
	dec, enc := testsupport.NewDecoder(), testsupport.NewEncoder()
	s := loaded(t, stubDeps(dec, enc), 600, 400)
	ctx := context.Background()

	if err := s.Process(ctx); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := s.Process(ctx); err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if got := dec.Decodes.Load(); got != 1 {
		t.Errorf("decodes = %d, want 1", got)
	}
	if s.State() != session.StateProcessed {
		t.Errorf("state = %s, want processed", s.State())
	}
	if !s.Decoded() {
		t.Error("Decoded() = false after Process")
	}
}

func TestConcurrentConversionsShareOneDecode(t *testing.T) {
	dec, enc := testsupport.NewDecoder(), testsupport.NewEncoder()
	dec.Gate = make(chan struct{})
	s := loaded(t, stubDeps(dec, enc), 600, 400)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			_, err := s.Convert(context.Background(), core.ConversionRequest{Format: core.FormatJPEG, Quality: core.Int(q)})
			errs <- err
		}(50 + i)
	}
	time.Sleep(20 * time.Millisecond)
	close(dec.Gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Convert: %v", err)
		}
	}
	if got := dec.Decodes.Load(); got != 1 {
		t.Errorf("decodes = %d, want 1", got)
	}
	if got := enc.Encodes.Load(); got != n {
		t.Errorf("encodes = %d, want %d", got, n)
	}
}

func TestDecodeFailureLeavesSessionRetryable(t *testing.T) {
	dec, enc := testsupport.NewDecoder(), testsupport.NewEncoder()
	dec.FailDecodes.Store(1)
	s := loaded(t, stubDeps(dec, enc), 600, 400)
	ctx := context.Background()

	if err := s.Process(ctx); !apperrors.IsDecodeError(err) {
		t.Fatalf("err = %v, want decode error", err)
	}
	if s.State() != session.StateLoaded {
		t.Errorf("state = %s, want loaded", s.State())
	}
	if err := s.Process(ctx); err != nil {
		t.Fatalf("retry Process: %v", err)
	}
	if got := dec.Decodes.Load(); got != 2 {
		t.Errorf("decodes = %d, want 2", got)
	}
}

func TestLifecycleErrors(t *testing.T) {
	dec, enc := testsupport.NewDecoder(), testsupport.NewEncoder()
	ctx := context.Background()
	s := session.New(stubDeps(dec, enc))

	if err := s.Process(ctx); !apperrors.IsNotLoadedError(err) {
		t.Errorf("Process before load: %v", err)
	}
	if _, err := s.Metadata(); !apperrors.IsNotLoadedError(err) {
		t.Errorf("Metadata before load: %v", err)
	}
	res, err := s.Convert(ctx, core.ConversionRequest{Format: core.FormatJPEG})
	if !apperrors.IsNotLoadedError(err) || res.Success || res.Err == nil {
		t.Errorf("Convert before load: %+v, %v", res, err)
	}

	if err := s.Load(ctx, rawSource(10, 10)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Load(ctx, rawSource(10, 10)); !apperrors.IsLoadError(err) || !errors.Is(err, apperrors.ErrAlreadyLoaded) {
		t.Errorf("second Load: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); !apperrors.IsAlreadyClosedError(err) {
		t.Errorf("second Close: %v", err)
	}
	if err := s.Process(ctx); !apperrors.IsAlreadyClosedError(err) {
		t.Errorf("Process after close: %v", err)
	}
	if _, err := s.Convert(ctx, core.ConversionRequest{Format: core.FormatJPEG}); !apperrors.IsAlreadyClosedError(err) {
		t.Errorf("Convert after close: %v", err)
	}
	if err := s.Load(ctx, rawSource(10, 10)); !apperrors.IsAlreadyClosedError(err) {
		t.Errorf("Load after close: %v", err)
	}
	if got := dec.Releases.Load(); got != 1 {
		t.Errorf("releases = %d, want 1", got)
	}
}

func TestLoadFailures(t *testing.T) {
	dec, enc := testsupport.NewDecoder(), testsupport.NewEncoder()
	ctx := context.Background()
	tests := []struct {
		name string
		deps session.Deps
		src  core.Source
	}{
		{"corrupt", stubDeps(dec, enc), core.Source{Reader: bytes.NewReader(testsupport.Corrupt), Name: "x.nef"}},
		{"empty", stubDeps(dec, enc), core.Source{Reader: strings.NewReader(""), Name: "x.nef"}},
		{"no input", stubDeps(dec, enc), core.Source{}},
		{"missing file", stubDeps(dec, enc), core.Source{Path: "/does/not/exist.nef"}},
		{"too large", session.Deps{Registry: testsupport.Registry(dec, enc), MaxImageBytes: 4}, rawSource(10, 10)},
		{"no decoder", session.Deps{Registry: core.NewRegistry()}, rawSource(10, 10)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := session.New(tc.deps)
			defer s.Close()
			if err := s.Load(ctx, tc.src); !apperrors.IsLoadError(err) {
				t.Errorf("err = %v, want load error", err)
			}
			if s.State() != session.StateEmpty {
				t.Errorf("state = %s, want empty", s.State())
			}
		})
	}
}

func TestSetDecodeParams(t *testing.T) {
	dec, enc := testsupport.NewDecoder(), testsupport.NewEncoder()
	ctx := context.Background()

	empty := session.New(stubDeps(dec, enc))
	if err := empty.SetDecodeParams(core.DecodeParams{HalfSize: true}); !apperrors.IsNotLoadedError(err) {
		t.Errorf("before load: %v", err)
	}

	s := loaded(t, stubDeps(dec, enc), 800, 600)
	if err := s.SetDecodeParams(core.DecodeParams{OutputBPS: 12}); !apperrors.IsInvalidOptionError(err) {
		t.Errorf("bad bps: %v", err)
	}
	if err := s.SetDecodeParams(core.DecodeParams{HalfSize: true}); err != nil {
		t.Fatalf("SetDecodeParams: %v", err)
	}
	res, err := s.Convert(ctx, core.ConversionRequest{Format: core.FormatPNG})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.OriginalDimensions != (core.Dimensions{Width: 400, Height: 300}) {
		t.Errorf("original dims = %v, want half size", res.OriginalDimensions)
	}
	if err := s.SetDecodeParams(core.DecodeParams{}); !apperrors.IsLoadError(err) {
		t.Errorf("after decode: %v", err)
	}
}

func TestConvertResizesPreservingAspect(t *testing.T) {
	dec, enc := testsupport.NewDecoder(), testsupport.NewEncoder()
	s := loaded(t, stubDeps(dec, enc), 6000, 4000)

	res, err := s.Convert(context.Background(), core.ConversionRequest{
		Format: core.FormatJPEG, Quality: core.Int(85), Width: core.Int(1920),
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.OutputDimensions != (core.Dimensions{Width: 1920, Height: 1280}) {
		t.Errorf("output = %v, want 1920x1280", res.OutputDimensions)
	}
	if len(res.Output) == 0 || res.CompressedByteSize != int64(len(res.Output)) {
		t.Errorf("output bytes = %d, compressed = %d", len(res.Output), res.CompressedByteSize)
	}
	want := float64(res.OriginalByteSize) / float64(res.CompressedByteSize)
	if math.Abs(res.CompressionRatio-want) > 1e-9 {
		t.Errorf("ratio = %f, want %f", res.CompressionRatio, want)
	}
	if res.FromCache {
		t.Error("first conversion reported fromCache")
	}
	if seen := enc.Seen(); len(seen) != 1 || seen[0].Quality != 85 {
		t.Errorf("encoder options = %+v", seen)
	}
}

func TestSecondConversionReusesDecode(t *testing.T) {
	dec, enc := testsupport.NewDecoder(), testsupport.NewEncoder()
	dec.Delay = 40 * time.Millisecond
	s := loaded(t, stubDeps(dec, enc), 6000, 4000)
	ctx := context.Background()

	first, err := s.Convert(ctx, core.ConversionRequest{Format: core.FormatJPEG, Quality: core.Int(90)})
	if err != nil {
		t.Fatalf("first Convert: %v", err)
	}
	second, err := s.Convert(ctx, core.ConversionRequest{Format: core.FormatJPEG, Quality: core.Int(60)})
	if err != nil {
		t.Fatalf("second Convert: %v", err)
	}
	if first.FromCache || !second.FromCache {
		t.Errorf("fromCache = %t, %t; want false, true", first.FromCache, second.FromCache)
	}
	if second.ProcessingTime >= first.ProcessingTime {
		t.Errorf("second took %s, first %s", second.ProcessingTime, first.ProcessingTime)
	}
}

func TestConvertRejectsBeforeDecode(t *testing.T) {
	dec, enc := testsupport.NewDecoder(), testsupport.NewEncoder()
	s := loaded(t, stubDeps(dec, enc), 100, 100)
	ctx := context.Background()

	tests := []core.ConversionRequest{
		{Format: core.FormatJPEG, Quality: core.Int(0)},
		{Format: core.FormatJPEG, Width: core.Int(-5)},
		{Format: core.FormatPNG, Quality: core.Int(80)},
		{Format: "bmp"},
	}
	for _, req := range tests {
		res, err := s.Convert(ctx, req)
		if !apperrors.IsInvalidOptionError(err) {
			t.Errorf("%+v: err = %v, want invalid option", req, err)
		}
		if res == nil || res.Success {
			t.Errorf("%+v: result = %+v", req, res)
		}
	}
	if got := dec.Decodes.Load(); got != 0 {
		t.Errorf("decodes = %d, want 0", got)
	}
}

func TestConvertEncodeFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("no encoder", func(t *testing.T) {
		dec := testsupport.NewDecoder()
		reg := core.NewRegistry()
		reg.RegisterDecoder(core.FormatRAW, dec)
		s := loaded(t, session.Deps{Registry: reg}, 10, 10)
		_, err := s.Convert(ctx, core.ConversionRequest{Format: core.FormatAVIF})
		if !apperrors.IsEncodeError(err) || !errors.Is(err, apperrors.ErrUnsupportedFormat) {
			t.Errorf("err = %v, want unsupported encode error", err)
		}
	})

	t.Run("empty output", func(t *testing.T) {
		enc := testsupport.NewEncoder()
		enc.Empty = true
		s := loaded(t, stubDeps(testsupport.NewDecoder(), enc), 10, 10)
		_, err := s.Convert(ctx, core.ConversionRequest{Format: core.FormatJPEG})
		if !apperrors.IsEncodeError(err) || !errors.Is(err, apperrors.ErrEmptyOutput) {
			t.Errorf("err = %v, want empty output", err)
		}
	})

	t.Run("panic", func(t *testing.T) {
		enc := testsupport.NewEncoder()
		enc.Panic = true
		s := loaded(t, stubDeps(testsupport.NewDecoder(), enc), 10, 10)
		_, err := s.Convert(ctx, core.ConversionRequest{Format: core.FormatJPEG})
		if !apperrors.IsEncodeError(err) {
			t.Errorf("err = %v, want encode error", err)
		}
		if s.State() != session.StateProcessed {
			t.Errorf("state = %s", s.State())
		}
	})
}

func TestConvertAll(t *testing.T) {
	dec, enc := testsupport.NewDecoder(), testsupport.NewEncoder()
	enc.Fail = map[core.Format]error{core.FormatWebP: errors.New("webp encoder unavailable")}
	s := loaded(t, stubDeps(dec, enc), 1200, 800, session.WithFanOutLimit(2))

	reqs := []core.ConversionRequest{
		{Format: core.FormatJPEG, Quality: core.Int(80)},
		{Format: core.FormatWebP, Quality: core.Int(75)},
		{Format: core.FormatAVIF, Effort: core.Int(20)},
		{Format: core.FormatPNG, Width: core.Int(600)},
		{Format: core.FormatTIFF},
	}
	results, err := s.ConvertAll(context.Background(), reqs)
	if err != nil {
		t.Fatalf("ConvertAll: %v", err)
	}
	if len(results) != len(reqs) {
		t.Fatalf("results = %d, want %d", len(results), len(reqs))
	}
	for i, r := range results {
		if r.Format != reqs[i].Format {
			t.Errorf("results[%d].Format = %s, want %s", i, r.Format, reqs[i].Format)
		}
	}
	if !results[0].Success || !results[3].Success || !results[4].Success {
		t.Error("valid formats did not all succeed")
	}
	if results[1].Success || !apperrors.IsEncodeError(results[1].Err) {
		t.Errorf("webp result = %+v", results[1])
	}
	if results[2].Success || !apperrors.IsInvalidOptionError(results[2].Err) {
		t.Errorf("avif result = %+v", results[2])
	}
	if results[3].OutputDimensions != (core.Dimensions{Width: 600, Height: 400}) {
		t.Errorf("png dims = %v", results[3].OutputDimensions)
	}
	if got := dec.Decodes.Load(); got != 1 {
		t.Errorf("decodes = %d, want 1", got)
	}
	if peak := enc.Gauge.Peak(); peak > 2 {
		t.Errorf("encoder peak = %d, fan-out limit 2", peak)
	}
}

func TestConvertAllDecodeFailure(t *testing.T) {
	dec, enc := testsupport.NewDecoder(), testsupport.NewEncoder()
	dec.FailDecodes.Store(1)
	s := loaded(t, stubDeps(dec, enc), 100, 100)
	_, err := s.ConvertAll(context.Background(), []core.ConversionRequest{{Format: core.FormatJPEG}})
	if !apperrors.IsDecodeError(err) {
		t.Errorf("err = %v, want decode error", err)
	}
}

func TestTimeoutAbandonsWaitButCloseDrains(t *testing.T) {
	dec, enc := testsupport.NewDecoder(), testsupport.NewEncoder()
	dec.Gate = make(chan struct{})
	s := session.New(stubDeps(dec, enc))
	if err := s.Load(context.Background(), rawSource(100, 100)); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Convert(ctx, core.ConversionRequest{Format: core.FormatJPEG})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	select {
	case <-closed:
		t.Fatal("Close returned while decode was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(dec.Gate)
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after decode finished")
	}
	if got := dec.Releases.Load(); got != 1 {
		t.Errorf("releases = %d, want 1", got)
	}
	if dec.Gauge.Active() != 0 {
		t.Error("decode still active after Close")
	}
}

func TestConvertTo(t *testing.T) {
	ctx := context.Background()
	local, err := storage.NewLocal(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	deps := stubDeps(testsupport.NewDecoder(), testsupport.NewEncoder())
	deps.Storage = local
	s := loaded(t, deps, 64, 64)

	res, err := s.ConvertTo(ctx, core.ConversionRequest{Format: core.FormatJPEG}, core.StorageKey{Bucket: "out", Path: "scene.jpg"})
	if err != nil {
		t.Fatalf("ConvertTo: %v", err)
	}
	info, err := os.Stat(res.OutputPath)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if info.Size() != res.CompressedByteSize {
		t.Errorf("file size = %d, want %d", info.Size(), res.CompressedByteSize)
	}

	bare := loaded(t, stubDeps(testsupport.NewDecoder(), testsupport.NewEncoder()), 64, 64)
	res, err = bare.ConvertTo(ctx, core.ConversionRequest{Format: core.FormatJPEG}, core.StorageKey{Path: "x.jpg"})
	if !errors.Is(err, apperrors.ErrStorageUnavailable) {
		t.Errorf("err = %v, want storage unavailable", err)
	}
	if res == nil || !res.Success || len(res.Output) == 0 {
		t.Errorf("buffer result lost on storage failure: %+v", res)
	}
}

func TestRecommend(t *testing.T) {
	s := loaded(t, stubDeps(testsupport.NewDecoder(), testsupport.NewEncoder()), 8165, 4899)
	rec, err := s.Recommend(optimizer.UsageWeb)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if rec.Category != optimizer.CategoryHigh || *rec.Request.ChromaSubsampling != core.Chroma420 {
		t.Errorf("recommendation = %+v", rec)
	}
}

func TestMetricsAndHooks(t *testing.T) {
	m := hooks.NewInMemoryMetrics()
	deps := stubDeps(testsupport.NewDecoder(), testsupport.NewEncoder())
	deps.Metrics = m
	s := loaded(t, deps, 100, 50)
	if _, err := s.Convert(context.Background(), core.ConversionRequest{Format: core.FormatPNG}); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	snap := m.Snapshot()
	for _, step := range []string{"load", "decode", "encode"} {
		if snap.StepCalls[step] != 1 {
			t.Errorf("%s calls = %d, want 1", step, snap.StepCalls[step])
		}
	}
	if snap.TotalMemoryB != 100*50*3 {
		t.Errorf("memory = %d", snap.TotalMemoryB)
	}
}

func TestGoCodecs(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var src bytes.Buffer
	if err := png.Encode(&src, img); err != nil {
		t.Fatal(err)
	}

	reg := core.NewRegistry()
	dec := decoder.New()
	decoder.Register(reg, dec)
	encoder.Register(reg, 85)

	s := session.New(session.Deps{Registry: reg})
	ctx := context.Background()
	if err := s.Load(ctx, core.Source{Reader: bytes.NewReader(src.Bytes()), Name: "plain.png"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	results, err := s.ConvertAll(ctx, []core.ConversionRequest{
		{Format: core.FormatJPEG, Quality: core.Int(90), Width: core.Int(32)},
		{Format: core.FormatPNG, CompressionLevel: core.Int(9)},
		{Format: core.FormatTIFF, Lossless: core.Bool(true)},
		{Format: core.FormatWebP},
	})
	if err != nil {
		t.Fatalf("ConvertAll: %v", err)
	}
	if results[0].OutputDimensions != (core.Dimensions{Width: 32, Height: 24}) {
		t.Errorf("jpeg dims = %v", results[0].OutputDimensions)
	}
	for _, r := range results[:3] {
		if !r.Success {
			t.Errorf("%s failed: %v", r.Format, r.Err)
		}
	}
	if results[3].Success || !apperrors.IsEncodeError(results[3].Err) {
		t.Errorf("webp should be unavailable in the Go build, got %+v", results[3])
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if dec.Released() != 1 {
		t.Errorf("released = %d, want 1", dec.Released())
	}
}

func goDeps() session.Deps {
	reg := core.NewRegistry()
	decoder.Register(reg, decoder.New())
	encoder.Register(reg, 85)
	return session.Deps{Registry: reg}
}

func loadEXIFJPEG(t *testing.T, deps session.Deps, x testsupport.EXIF) *session.Session {
	t.Helper()
	raw, err := testsupport.JPEGWithEXIF(testsupport.HalfAndHalf(40, 20,
		color.NRGBA{R: 255, A: 255}, color.NRGBA{B: 255, A: 255}), x)
	if err != nil {
		t.Fatalf("build jpeg: %v", err)
	}
	s := session.New(deps)
	if err := s.Load(context.Background(), core.Source{Reader: bytes.NewReader(raw), Name: "portrait.jpg"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConvertAppliesEXIFOrientation(t *testing.T) {
	tests := []struct {
		name       string
		autoRotate bool
		want       core.Dimensions
	}{
		{"auto rotate", true, core.Dimensions{Width: 20, Height: 40}},
		{"stored layout", false, core.Dimensions{Width: 40, Height: 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loadEXIFJPEG(t, goDeps(), testsupport.EXIF{Make: "Canon", Orientation: 6, ISO: 400})
			meta, err := s.Metadata()
			if err != nil {
				t.Fatalf("Metadata: %v", err)
			}
			if meta.Make != "Canon" || meta.Orientation != 6 || meta.ISO != 400 {
				t.Errorf("metadata = make %q orientation %d iso %v", meta.Make, meta.Orientation, meta.ISO)
			}
			if err := s.SetDecodeParams(core.DecodeParams{AutoRotate: tt.autoRotate}); err != nil {
				t.Fatalf("SetDecodeParams: %v", err)
			}
			res, err := s.Convert(context.Background(), core.ConversionRequest{Format: core.FormatJPEG})
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			if res.OutputDimensions != tt.want {
				t.Errorf("output = %v, want %v", res.OutputDimensions, tt.want)
			}
			cfg, _, err := image.DecodeConfig(bytes.NewReader(res.Output))
			if err != nil {
				t.Fatalf("decode output: %v", err)
			}
			if cfg.Width != tt.want.Width || cfg.Height != tt.want.Height {
				t.Errorf("encoded = %dx%d, want %v", cfg.Width, cfg.Height, tt.want)
			}
		})
	}
}

func TestThumbnail(t *testing.T) {
	preview, err := testsupport.JPEGWithEXIF(testsupport.HalfAndHalf(16, 12,
		color.NRGBA{R: 255, A: 255}, color.NRGBA{G: 255, A: 255}), testsupport.EXIF{})
	if err != nil {
		t.Fatal(err)
	}

	s := loadEXIFJPEG(t, goDeps(), testsupport.EXIF{Make: "Canon", Thumbnail: preview})
	res, err := s.Thumbnail(context.Background())
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if !res.Success || res.Format != core.FormatJPEG {
		t.Errorf("result = %+v", res)
	}
	if res.OutputDimensions != (core.Dimensions{Width: 16, Height: 12}) {
		t.Errorf("dims = %v, want 16x12", res.OutputDimensions)
	}
	if !bytes.Equal(res.Output, preview) || res.CompressedByteSize != int64(len(preview)) {
		t.Errorf("output differs from the embedded preview (%d bytes)", len(res.Output))
	}
	if res.OriginalDimensions != (core.Dimensions{Width: 40, Height: 20}) {
		t.Errorf("original = %v", res.OriginalDimensions)
	}
	if s.Decoded() || s.State() != session.StateLoaded {
		t.Error("Thumbnail must not decode the source")
	}

	t.Run("missing preview", func(t *testing.T) {
		s := loadEXIFJPEG(t, goDeps(), testsupport.EXIF{Make: "Canon"})
		res, err := s.Thumbnail(context.Background())
		if !apperrors.IsDecodeError(err) || !errors.Is(err, apperrors.ErrNoThumbnail) {
			t.Fatalf("err = %v, want decode error wrapping ErrNoThumbnail", err)
		}
		if res.Success || res.Err == nil {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("decoder without previews", func(t *testing.T) {
		s := loaded(t, stubDeps(testsupport.NewDecoder(), testsupport.NewEncoder()), 60, 40)
		if _, err := s.Thumbnail(context.Background()); !errors.Is(err, apperrors.ErrNoThumbnail) {
			t.Errorf("err = %v, want ErrNoThumbnail", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		s := loadEXIFJPEG(t, goDeps(), testsupport.EXIF{Thumbnail: preview})
		_ = s.Close()
		if _, err := s.Thumbnail(context.Background()); !errors.Is(err, apperrors.ErrAlreadyClosed) {
			t.Errorf("err = %v, want ErrAlreadyClosed", err)
		}
	})
}

func TestSessionsCloneSharedPipeline(t *testing.T) {
	shared := hooks.NewInMemoryMetrics()
	deps := stubDeps(testsupport.NewDecoder(), testsupport.NewEncoder())
	deps.Metrics = shared
	deps.Pipeline = session.NewPipeline(deps)

	own := hooks.NewInMemoryMetrics()
	loaded(t, deps, 40, 20, session.WithHook(hooks.NewMetricsHook(own)))
	loaded(t, deps, 40, 20)

	if got := shared.Snapshot().StepCalls["load"]; got != 2 {
		t.Errorf("shared load calls = %d, want 2", got)
	}
	if got := own.Snapshot().StepCalls["load"]; got != 1 {
		t.Errorf("per-session load calls = %d, want 1", got)
	}
}
