package session

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
)

// ConvertAll runs every request against a single decode and returns the
// results in request order. One request failing never cancels another; its
// result carries the error instead. The returned error is set only when no
// request could run: the session is not usable or the decode failed.
func (s *Session) ConvertAll(ctx context.Context, reqs []core.ConversionRequest) ([]*core.ConversionResult, error) {
	const op = "session.convert_all"
	if err := s.begin(op); err != nil {
		return nil, err
	}
	defer s.end()

	start := time.Now()
	results := make([]*core.ConversionResult, len(reqs))
	encoders := make([]core.Encoder, len(reqs))
	runnable := 0
	for i, req := range reqs {
		results[i] = &core.ConversionResult{Format: req.Format}
		if err := core.ValidateRequest(req); err != nil {
			_, _ = fail(results[i], start, err)
			continue
		}
		enc, ok := s.deps.Registry.EncoderFor(req.Format)
		if !ok {
			_, _ = fail(results[i], start, apperrors.EncodeError(op,
				fmt.Errorf("%w: no %s encoder on this build", apperrors.ErrUnsupportedFormat, req.Format)))
			continue
		}
		encoders[i] = enc
		runnable++
	}
	if runnable == 0 {
		return results, nil
	}

	d, cached, err := s.process(ctx)
	if err != nil {
		return nil, err
	}

	var g errgroup.Group
	if s.fanOutLimit > 0 {
		g.SetLimit(s.fanOutLimit)
	}
	for i, req := range reqs {
		if encoders[i] == nil {
			continue
		}
		g.Go(func() error {
			_, _ = s.convert(ctx, start, results[i], encoders[i], d, cached, req)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	s.log.Debug("session.fanout.done",
		"session", s.id,
		"requests", len(reqs),
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}
