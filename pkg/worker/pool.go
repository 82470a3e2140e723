// Package worker runs generation jobs in-process, one goroutine per job.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"video-relay/dto"
)

var (
	ErrPoolNotStarted = errors.New("worker pool not started")
	ErrPoolStopped    = errors.New("worker pool stopped")
)

type Handler[T any] func(ctx context.Context, msg dto.GenerationMessage, dependencies T) error

// Pool detaches each dispatched job from the caller. With numWorkers > 0 at
// most that many jobs run at once; the rest wait inside their own goroutine so
// Dispatch never blocks.
type Pool[T any] struct {
	handler Handler[T]
	sem     *semaphore.Weighted

	mu      sync.RWMutex
	ctx     context.Context
	deps    T
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func NewPool[T any](numWorkers int, handler Handler[T]) *Pool[T] {
	p := &Pool[T]{handler: handler}
	if numWorkers > 0 {
		p.sem = semaphore.NewWeighted(int64(numWorkers))
	}
	return p
}

// Start binds the pool to ctx and deps. Jobs inherit ctx, so cancelling it
// stops running jobs and rejects new ones.
func (p *Pool[T]) Start(ctx context.Context, dependencies T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctx = ctx
	p.deps = dependencies
	p.started = true
}

func (p *Pool[T]) Dispatch(_ context.Context, msg dto.GenerationMessage) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped || p.ctx.Err() != nil {
		return ErrPoolStopped
	}

	ctx, deps := p.ctx, p.deps
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, msg, deps)
	}()
	return nil
}

func (p *Pool[T]) run(ctx context.Context, msg dto.GenerationMessage, deps T) {
	logger := zerolog.Ctx(ctx).With().Str("generation_id", msg.GenerationId.String()).Logger()
	ctx = logger.WithContext(ctx)

	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			logger.Warn().Err(err).Msg("job abandoned while waiting for a worker")
			return
		}
		defer p.sem.Release(1)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("generation job panicked")
		}
	}()

	if err := p.handler(ctx, msg, deps); err != nil {
		logger.Error().Err(err).Msg("failed to handle generation job")
	}
}

// Stop rejects further jobs. Once it returns no Dispatch can add work, so Wait
// may be called safely.
func (p *Pool[T]) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

// Wait blocks until every dispatched job has returned. Call Stop first.
func (p *Pool[T]) Wait() {
	p.wg.Wait()
}
