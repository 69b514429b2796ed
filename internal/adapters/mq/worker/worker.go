// Package worker runs chunk classification off the queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/celestial/internal/domain/model"
	"github.com/okian/celestial/pkg/logger"
	"github.com/okian/celestial/pkg/metrics"
)

// ErrPanic wraps a panic raised by the predictor.
var ErrPanic = errors.New("predictor panicked")

// Chunk abstracts what workers read off the queue.
type Chunk = model.Chunk

// Predictor labels rows.
type Predictor interface {
	Predict(ctx context.Context, rows []model.Row) ([]model.Label, error)
}

// Queue defines how workers receive chunks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Chunk
}

// Worker classifies chunks and replies with their labels.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue drains.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for it to exit.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing chunks.
type InMemoryWorker struct {
	queue     Queue
	predictor Predictor
	name      string

	// active is shared across a pool to report busy workers.
	active *atomic.Int64

	shutdown chan struct{}
	stopped  atomic.Bool
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, predictor Predictor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		predictor: predictor,
		name:      "worker",
		active:    new(atomic.Int64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	// Cancelling on exit releases the queue's forwarding goroutine.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case c, ok := <-chunks:
			if !ok {
				return
			}
			w.process(ctx, c)
		}
	}
}

// Shutdown stops the worker. Safe to call more than once.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	if w.stopped.CompareAndSwap(false, true) {
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// process classifies one chunk and delivers the reply.
func (w *InMemoryWorker) process(ctx context.Context, c Chunk) { //nolint:gocritic // hugeParam: Chunk is passed by value for channel semantics
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
		metrics.UpdateWorkerActiveCount(int(w.active.Add(-1)))
	}()

	labels, err := w.classify(ctx, c.Rows)
	if err == nil && len(labels) != len(c.Rows) {
		err = fmt.Errorf("predictor returned %d labels for %d rows", len(labels), len(c.Rows))
	}
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "classify")
		w.logger.Error(ctx, "chunk classification failed",
			logger.String("batch_id", c.BatchID),
			logger.Int("chunk", c.Index),
			logger.Error(err),
		)
		labels = nil
	}

	if c.Reply == nil {
		return
	}
	res := model.ChunkResult{BatchID: c.BatchID, Index: c.Index, Labels: labels, Err: err}
	select {
	case c.Reply <- res:
	case <-ctx.Done():
	case <-w.shutdown:
	}
}

func (w *InMemoryWorker) classify(ctx context.Context, rows []model.Row) (labels []model.Label, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return w.predictor.Predict(ctx, rows)
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	started atomic.Bool

	logger logger.Logger
}

// NewPool creates a new worker pool. A non-positive count uses one worker
// per CPU.
func NewPool(workerCount int, queue Queue, predictor Predictor) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}

	active := new(atomic.Int64)
	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker(queue, predictor, WithName("worker-"+strconv.Itoa(i)))
		w.active = active
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, lets workers drain what is queued, and stops
// any worker still running when ctx expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	if !p.started.Load() {
		return nil
	}

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			if !timedOut {
				p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			}
			timedOut = true
		}
	}
	if !timedOut {
		return nil
	}

	// Force the stragglers out.
	for _, w := range p.workers {
		if w.stopped.CompareAndSwap(false, true) {
			close(w.shutdown)
		}
		<-w.done
	}
	return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
}
