// Package pipeline runs named session steps with hook and retry support.
package pipeline

import (
	"context"
	"time"

	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
)

// StepFunc performs one step. It may fill in ev (dimensions, bytes) so the
// after-hooks see the outcome.
type StepFunc func(ctx context.Context, ev *core.StepEvent) error

// Pipeline executes steps with hook and retry support. It holds no per-run
// state and is safe for concurrent use once configured.
type Pipeline struct {
	hooks      []core.Hook
	maxRetries int
	retryDelay time.Duration
}

// New returns an empty Pipeline.
func New() *Pipeline { return &Pipeline{} }

// AddHook registers an observer.
func (p *Pipeline) AddHook(h core.Hook) *Pipeline {
	p.hooks = append(p.hooks, h)
	return p
}

// WithRetry sets the maximum retry count and delay for transient failures.
func (p *Pipeline) WithRetry(maxRetries int, delay time.Duration) *Pipeline {
	p.maxRetries = maxRetries
	p.retryDelay = delay
	return p
}

// Run executes fn as the named step, calling hooks around it and retrying
// errors marked retryable. It returns the time spent in the last attempt.
func (p *Pipeline) Run(ctx context.Context, step string, ev core.StepEvent, fn StepFunc) (time.Duration, error) {
	p.callHooksBefore(ctx, step, ev)

	var (
		elapsed time.Duration
		err     error
	)

	attempts := p.maxRetries + 1
	for i := 0; i < attempts; i++ {
		start := time.Now()
		err = fn(ctx, &ev)
		elapsed = time.Since(start)

		if err == nil {
			break
		}
		if !apperrors.IsRetryable(err) || i == attempts-1 {
			break
		}
		// Wait before retrying.
		select {
		case <-ctx.Done():
			err = apperrors.Wrap(apperrors.CategoryPipeline, step, ctx.Err())
			goto done
		case <-time.After(p.retryDelay):
		}
	}

done:
	p.callHooksAfter(ctx, step, ev, elapsed, err)
	return elapsed, err
}

func (p *Pipeline) callHooksBefore(ctx context.Context, name string, ev core.StepEvent) {
	for _, h := range p.hooks {
		h.BeforeStep(ctx, name, ev)
	}
}

func (p *Pipeline) callHooksAfter(ctx context.Context, name string, ev core.StepEvent, d time.Duration, err error) {
	for _, h := range p.hooks {
		h.AfterStep(ctx, name, ev, d, err)
	}
}

// Clone returns a copy of the pipeline so a configured template can be
// extended without affecting other users.
func (p *Pipeline) Clone() *Pipeline {
	cp := &Pipeline{
		hooks:      make([]core.Hook, len(p.hooks)),
		maxRetries: p.maxRetries,
		retryDelay: p.retryDelay,
	}
	copy(cp.hooks, p.hooks)
	return cp
}
