package session

import (
	"context"
	"fmt"
	"time"

	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
)

// Thumbnail returns the preview embedded in the source as stored, without
// decoding the full image. It works in the Loaded and Processed states and
// never changes them. A source without a preview fails with a DecodeError
// wrapping ErrNoThumbnail.
func (s *Session) Thumbnail(ctx context.Context) (*core.ConversionResult, error) {
	const op = "session.thumbnail"
	start := time.Now()
	res := &core.ConversionResult{}
	if err := s.begin(op); err != nil {
		return fail(res, start, err)
	}
	defer s.end()

	s.mu.Lock()
	dec, h, meta := s.decoder, s.handle, s.meta
	s.mu.Unlock()
	res.OriginalDimensions = meta.Dimensions()
	res.OriginalByteSize = meta.SizeBytes

	tr, ok := dec.(core.ThumbnailReader)
	if !ok {
		return fail(res, start, apperrors.DecodeError(op,
			fmt.Errorf("%w: decoder cannot read embedded previews", apperrors.ErrNoThumbnail)))
	}

	var th core.Thumbnail
	_, err := s.pipe.Run(ctx, "thumbnail", s.event(), func(ctx context.Context, ev *core.StepEvent) error {
		var terr error
		th, terr = tr.Thumbnail(ctx, unwrapHandle(h))
		if terr != nil {
			return apperrors.DecodeError(op, terr)
		}
		if len(th.Data) == 0 {
			return apperrors.DecodeError(op, apperrors.ErrNoThumbnail)
		}
		ev.Format = th.Format
		ev.Width, ev.Height, ev.Bytes = th.Dimensions.Width, th.Dimensions.Height, int64(len(th.Data))
		return nil
	})
	if err != nil {
		return fail(res, start, err)
	}

	res.Success = true
	res.Format = th.Format
	res.Output = th.Data
	res.OutputDimensions = th.Dimensions
	res.CompressedByteSize = int64(len(th.Data))
	res.CompressionRatio = float64(res.OriginalByteSize) / float64(res.CompressedByteSize)
	res.ProcessingTime = time.Since(start)
	if secs := res.ProcessingTime.Seconds(); secs > 0 {
		res.ThroughputMBps = float64(res.OriginalByteSize) / mib / secs
	}
	s.log.Debug("session.thumbnail",
		"session", s.id,
		"dimensions", th.Dimensions.String(),
		"bytes", res.CompressedByteSize,
	)
	return res, nil
}
