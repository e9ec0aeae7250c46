// Package batch converts many sources with a bounded worker pool. Every
// source gets its own session; a failing source is recorded and never stops
// the others.
package batch

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
	"github.com/Skryldev/raw-converter/session"
)

// DefaultConcurrency is used when a Job does not set Concurrency.
const DefaultConcurrency = 4

// SessionFactory returns a new empty session that persists through st. st is
// nil when the scheduler has no storage.
type SessionFactory func(st core.StorageAdapter) *session.Session

// ProgressFunc is called after each input finishes. Calls are serialized.
type ProgressFunc func(done, total int)

// Job describes one batch run.
type Job struct {
	ID             string // generated when empty
	Inputs         []core.Source
	OutputLocation string
	Options        core.ConversionRequest
	Concurrency    int
	ItemTimeout    time.Duration // 0 = no per-item deadline
}

// Success is one converted input.
type Success struct {
	Input  string
	Output string
	Result *core.ConversionResult
}

// Failure is one input that could not be converted.
type Failure struct {
	Input string
	Err   error
}

// Summary aggregates the successful conversions of a run.
type Summary struct {
	Total     int
	Processed int
	Errors    int

	// Sum of per-file ConversionResult.ProcessingTime: decode plus encode.
	// Reading the source and writing the output are not included. Files
	// overlap when Concurrency > 1, so this usually exceeds Result.WallTime.
	TotalProcessingTime     time.Duration
	AverageCompressionRatio float64
	TotalOriginalBytes      int64
	TotalCompressedBytes    int64
	// TotalProcessingTime over Processed; use Result.WallTime for elapsed
	// time per input.
	AveragePerFile time.Duration
}

// Result is the full accounting of a run: every input appears exactly once
// in Successful or Failed.
type Result struct {
	ID         string
	Successful []Success
	Failed     []Failure
	Summary    Summary
	WallTime   time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option { return func(s *Scheduler) { s.progress = fn } }

// WithLogger sets the logger.
func WithLogger(l core.Logger) Option { return func(s *Scheduler) { s.log = l } }

// WithStorage makes the scheduler persist every output under the job's
// OutputLocation. Without storage, outputs stay in the results.
func WithStorage(st core.StorageAdapter) Option { return func(s *Scheduler) { s.storage = st } }

// WithQueueSize bounds how many inputs wait in the queue ahead of the workers.
func WithQueueSize(n int) Option { return func(s *Scheduler) { s.queueSize = n } }

// Scheduler runs batch jobs. It holds no per-job state and may run several
// jobs at once against different output locations.
type Scheduler struct {
	factory   SessionFactory
	storage   core.StorageAdapter
	log       core.Logger
	progress  ProgressFunc
	queueSize int
}

// New creates a Scheduler that builds sessions with factory.
func New(factory SessionFactory, opts ...Option) *Scheduler {
	s := &Scheduler{factory: factory, log: core.NopLogger{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

type outcome struct {
	done   bool
	output string
	result *core.ConversionResult
	err    error
}

// Run converts every input of job. The error is non-nil only for setup
// failures: invalid shared options, an output location that cannot be
// prepared, or one that another batch holds. Per-input failures are reported
// in Result.Failed.
func (s *Scheduler) Run(ctx context.Context, job Job) (*Result, error) {
	const op = "batch.run"
	if s.factory == nil {
		return nil, apperrors.New(apperrors.CategoryConfig, op, fmt.Errorf("no session factory"))
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if err := core.ValidateRequest(job.Options); err != nil {
		return nil, err
	}
	conc := job.Concurrency
	if conc <= 0 {
		conc = DefaultConcurrency
	}

	unlock, err := s.reserve(ctx, job.OutputLocation)
	if err != nil {
		s.log.Error("batch.setup.failed", "job", job.ID, "output", job.OutputLocation, "error", err.Error())
		return nil, err
	}
	defer func() {
		if uerr := unlock(); uerr != nil {
			s.log.Warn("batch.unlock.failed", "job", job.ID, "error", uerr.Error())
		}
	}()

	start := time.Now()
	n := len(job.Inputs)
	names := OutputNames(job.Inputs, job.Options.Format)
	outcomes := make([]outcome, n)
	s.log.Info("batch.start",
		"job", job.ID,
		"inputs", n,
		"format", job.Options.Format,
		"concurrency", conc,
		"output", job.OutputLocation,
	)

	queue := make(chan int, max(0, min(s.queueSize, n)))
	var (
		g         errgroup.Group
		progressM sync.Mutex
		completed int
	)
	g.Go(func() error {
		defer close(queue)
		for i := range n {
			select {
			case queue <- i:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})
	for range min(conc, n) {
		g.Go(func() error {
			for i := range queue {
				outcomes[i] = s.runItem(ctx, job, job.Inputs[i], names[i])
				progressM.Lock()
				completed++
				if s.progress != nil {
					s.progress(completed, n)
				}
				progressM.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{ID: job.ID, WallTime: time.Since(start)}
	for i, o := range outcomes {
		input := job.Inputs[i].Identifier()
		switch {
		case !o.done:
			err := ctx.Err()
			if err == nil {
				err = apperrors.ErrInvalidState
			}
			res.Failed = append(res.Failed, Failure{Input: input, Err: apperrors.Wrap(apperrors.CategoryPipeline, op, err)})
		case o.err != nil:
			res.Failed = append(res.Failed, Failure{Input: input, Err: o.err})
		default:
			res.Successful = append(res.Successful, Success{Input: input, Output: o.output, Result: o.result})
		}
	}
	res.Summary = Summarize(n, res.Successful)
	s.log.Info("batch.done",
		"job", job.ID,
		"processed", res.Summary.Processed,
		"errors", res.Summary.Errors,
		"wall_ms", res.WallTime.Milliseconds(),
		"avg_ratio", fmt.Sprintf("%.2f", res.Summary.AverageCompressionRatio),
	)
	return res, nil
}

// reserve prepares and locks the output location when the storage supports
// it. The returned unlock is never nil.
func (s *Scheduler) reserve(ctx context.Context, location string) (func() error, error) {
	noop := func() error { return nil }
	if s.storage == nil {
		return noop, nil
	}
	if p, ok := s.storage.(core.Preparer); ok {
		if err := p.Prepare(ctx, location); err != nil {
			return nil, err
		}
	}
	if l, ok := s.storage.(core.Locker); ok {
		return l.Lock(ctx, location)
	}
	return noop, nil
}

// runItem takes one source through a full session lifecycle. The session is
// closed on every path; Close waits for work a timeout abandoned, so a worker
// never starts its next input while the previous one still runs.
func (s *Scheduler) runItem(ctx context.Context, job Job, src core.Source, name string) (o outcome) {
	const op = "batch.item"
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			o = outcome{err: apperrors.New(apperrors.CategoryPipeline, op, fmt.Errorf("panic: %v", p))}
		}
		o.done = true
		if o.err != nil {
			s.log.Warn("batch.item.failed",
				"job", job.ID,
				"input", src.Identifier(),
				"duration_ms", time.Since(start).Milliseconds(),
				"error", o.err.Error(),
			)
		}
	}()

	if job.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.ItemTimeout)
		defer cancel()
	}

	sess := s.factory(s.storage)
	defer func() {
		if err := sess.Close(); err != nil {
			s.log.Warn("batch.item.close", "job", job.ID, "session", sess.ID(), "error", err.Error())
		}
	}()

	if err := sess.Load(ctx, src); err != nil {
		return outcome{err: err}
	}
	// Convert decodes on first use, so each result's ProcessingTime covers
	// decode and encode.
	if s.storage == nil {
		r, err := sess.Convert(ctx, job.Options)
		if err != nil {
			return outcome{err: err}
		}
		return outcome{result: r, output: path.Join(job.OutputLocation, name)}
	}
	r, err := sess.ConvertTo(ctx, job.Options, core.StorageKey{Bucket: job.OutputLocation, Path: name})
	if err != nil {
		return outcome{err: err}
	}
	// The bytes are stored; don't hold every output in memory.
	r.Output = nil
	return outcome{result: r, output: r.OutputPath}
}
