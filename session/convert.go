package session

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
	"github.com/Skryldev/raw-converter/optimizer"
)

const mib = 1024 * 1024

// Convert encodes the session's source into req.Format, decoding first if
// needed. A failed conversion still returns a result describing the attempt,
// with Success false and Err set to the returned error.
func (s *Session) Convert(ctx context.Context, req core.ConversionRequest) (*core.ConversionResult, error) {
	start := time.Now()
	res := &core.ConversionResult{Format: req.Format}
	if err := s.begin("session.convert"); err != nil {
		return fail(res, start, err)
	}
	defer s.end()

	if err := core.ValidateRequest(req); err != nil {
		return fail(res, start, err)
	}
	enc, ok := s.deps.Registry.EncoderFor(req.Format)
	if !ok {
		return fail(res, start, apperrors.EncodeError("session.convert",
			fmt.Errorf("%w: no %s encoder on this build", apperrors.ErrUnsupportedFormat, req.Format)))
	}

	d, cached, err := s.process(ctx)
	if err != nil {
		return fail(res, start, err)
	}
	return s.convert(ctx, start, res, enc, d, cached, req)
}

// convert runs the encode half of a conversion. The caller holds a token and
// has validated req.
func (s *Session) convert(ctx context.Context, start time.Time, res *core.ConversionResult, enc core.Encoder,
	d *decoded, cached bool, req core.ConversionRequest) (*core.ConversionResult, error) {

	opts := core.Normalize(req, d.dims, s.deps.DefaultQuality)
	res.FromCache = cached
	res.OriginalDimensions = d.dims
	res.OriginalByteSize = s.originalSize()

	ev := s.event()
	ev.Format = req.Format
	var (
		out  []byte
		dims core.Dimensions
	)
	_, err := s.pipe.Run(ctx, "encode", ev, func(ctx context.Context, ev *core.StepEvent) error {
		var eerr error
		out, dims, eerr = s.encode(ctx, enc, d.raster, opts)
		if eerr != nil {
			return eerr
		}
		if len(out) == 0 {
			return apperrors.EncodeError("session.encode", apperrors.ErrEmptyOutput)
		}
		ev.Width, ev.Height, ev.Bytes = dims.Width, dims.Height, int64(len(out))
		return nil
	})
	if err != nil {
		return fail(res, start, err)
	}
	if dims.Empty() {
		dims = core.Dimensions{Width: opts.Width, Height: opts.Height}
	}

	res.Success = true
	res.Output = out
	res.OutputDimensions = dims
	res.CompressedByteSize = int64(len(out))
	res.CompressionRatio = float64(res.OriginalByteSize) / float64(res.CompressedByteSize)
	res.ProcessingTime = time.Since(start)
	if secs := res.ProcessingTime.Seconds(); secs > 0 {
		res.ThroughputMBps = float64(res.OriginalByteSize) / mib / secs
	}
	s.log.Debug("session.converted",
		"session", s.id,
		"format", req.Format,
		"dimensions", dims.String(),
		"bytes", res.CompressedByteSize,
		"ratio", res.RatioString(),
		"from_cache", cached,
		"duration_ms", res.ProcessingTime.Milliseconds(),
	)
	return res, nil
}

// encode runs the encoder on its own goroutine so ctx can abandon it. The
// goroutine keeps a token until the encoder returns, which holds Close back.
func (s *Session) encode(ctx context.Context, enc core.Encoder, r core.Raster, opts core.EncodeOptions) ([]byte, core.Dimensions, error) {
	const op = "session.encode"
	if err := s.begin(op); err != nil {
		return nil, core.Dimensions{}, err
	}
	type outcome struct {
		out  []byte
		dims core.Dimensions
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		defer s.end()
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: apperrors.EncodeError(op, fmt.Errorf("encoder panic: %v", p))}
			}
		}()
		out, dims, err := enc.Encode(ctx, r, opts)
		if err != nil {
			err = apperrors.EncodeError(op, err)
		}
		done <- outcome{out: out, dims: dims, err: err}
	}()

	select {
	case o := <-done:
		return o.out, o.dims, o.err
	case <-ctx.Done():
		return nil, core.Dimensions{}, apperrors.EncodeError(op, ctx.Err())
	}
}

// ConvertTo converts and then writes the output through the configured
// storage adapter under key. A storage failure is returned together with
// the successful buffer result.
func (s *Session) ConvertTo(ctx context.Context, req core.ConversionRequest, key core.StorageKey) (*core.ConversionResult, error) {
	const op = "session.persist"
	res, err := s.Convert(ctx, req)
	if err != nil {
		return res, err
	}
	if s.deps.Storage == nil {
		return res, apperrors.New(apperrors.CategoryStorage, op, apperrors.ErrStorageUnavailable)
	}
	if err := s.begin(op); err != nil {
		return res, err
	}
	defer s.end()

	meta := map[string]string{
		"format":  string(res.Format),
		"width":   strconv.Itoa(res.OutputDimensions.Width),
		"height":  strconv.Itoa(res.OutputDimensions.Height),
		"source":  s.SourceName(),
		"session": s.id,
	}
	ev := s.event()
	ev.Format, ev.Bytes = res.Format, res.CompressedByteSize
	_, err = s.pipe.Run(ctx, "persist", ev, func(ctx context.Context, _ *core.StepEvent) error {
		return apperrors.Wrap(apperrors.CategoryStorage, op,
			s.deps.Storage.Put(ctx, key, bytes.NewReader(res.Output), meta))
	})
	if err != nil {
		s.log.Warn("session.persist.failed", "session", s.id, "key", key.Path, "error", err.Error())
		return res, err
	}
	res.OutputPath = outputPath(s.deps.Storage, key)
	return res, nil
}

func outputPath(st core.StorageAdapter, key core.StorageKey) string {
	if p, ok := st.(interface{ Path(core.StorageKey) string }); ok {
		return p.Path(key)
	}
	return path.Join(key.Bucket, key.Path)
}

// Recommend derives conversion settings for usage from the loaded source's
// dimensions.
func (s *Session) Recommend(usage optimizer.Usage) (*optimizer.Recommendation, error) {
	meta, err := s.Metadata()
	if err != nil {
		return nil, err
	}
	return optimizer.Recommend(meta.Dimensions(), usage)
}

func (s *Session) originalSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.SizeBytes
}

func fail(res *core.ConversionResult, start time.Time, err error) (*core.ConversionResult, error) {
	res.Success = false
	res.Err = err
	res.ProcessingTime = time.Since(start)
	return res, err
}
