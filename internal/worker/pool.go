// Package worker runs fire-and-forget background tasks on a bounded pool.
// Submit never blocks the caller; a task that panics is logged and the
// worker keeps going.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

var (
	ErrPoolFull   = errors.New("worker pool queue is full")
	ErrPoolClosed = errors.New("worker pool is closed")
)

type TaskFunc func(ctx context.Context) error

type task struct {
	name string
	fn   TaskFunc
}

type Pool struct {
	tasks  chan task
	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New starts size workers fed by a queue of the given capacity.
func New(size, queue int) *Pool {
	if size <= 0 {
		size = 1
	}
	if queue < 0 {
		queue = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan task, queue),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < size; i++ {
		p.wg.Go(p.loop)
	}
	log.Info().Str("module", "worker").Int("size", size).Int("queue", queue).Msg("pool started")
	return p
}

func (p *Pool) Submit(name string, fn TaskFunc) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task{name: name, fn: fn}:
		return nil
	default:
		log.Warn().Str("module", "worker").Str("task", name).Msg("queue full, task rejected")
		return ErrPoolFull
	}
}

// Pending is the number of queued tasks not yet picked up.
func (p *Pool) Pending() int {
	return len(p.tasks)
}

// Close stops accepting tasks and waits until the queue is drained.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	log.Info().Str("module", "worker").Msg("pool drained")
}

// Abort cancels the context seen by running tasks, then drains like Close.
func (p *Pool) Abort() {
	p.cancel()
	p.Close()
}

func (p *Pool) loop() {
	for t := range p.tasks {
		p.run(t)
	}
}

func (p *Pool) run(t task) {
	var (
		pc  panics.Catcher
		err error
	)
	pc.Try(func() { err = t.fn(p.ctx) })

	if r := pc.Recovered(); r != nil {
		log.Error().Str("module", "worker").Str("task", t.name).
			Str("panic", r.String()).Msg("task panicked")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "worker").Str("task", t.name).Msg("task failed")
	}
}
