// Package jobs runs import tasks on a fixed in-process worker pool.
//
// Each accepted task gets a correlation id callers poll progress with. A
// panicking task is recovered and surfaced as a task failure instead of
// taking the process down.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Task is one unit of asynchronous work. The correlation id identifies the
// submission for progress reporting.
type Task func(ctx context.Context, correlationID string) error

// Submitter is the seam the upload workflow enqueues through.
type Submitter interface {
	Enqueue(ctx context.Context, name string, task Task) (correlationID string, err error)
}

// Logger is the minimal logging seam. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// ErrShuttingDown is returned by Enqueue after Shutdown has started.
var ErrShuttingDown = errors.New("jobs: pool is shutting down")

type submission struct {
	name          string
	correlationID string
	task          Task
}

// Pool is a fixed-size worker pool with a buffered queue.
type Pool struct {
	logger Logger

	queue chan submission
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool

	// baseCtx is the lifetime of the pool, not of any one submission:
	// queued tasks keep running during graceful shutdown until it fires.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewPool starts workers goroutines draining a queue of queueSize pending
// submissions.
func NewPool(workers, queueSize int, logger Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger:  logger,
		queue:   make(chan submission, queueSize),
		baseCtx: ctx,
		cancel:  cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

// Enqueue adds a task to the queue and returns its correlation id. The
// submission context only covers enqueueing; execution runs on the pool's
// own lifetime.
func (p *Pool) Enqueue(ctx context.Context, name string, task Task) (string, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", ErrShuttingDown
	}
	p.mu.Unlock()

	id := uuid.NewString()
	select {
	case p.queue <- submission{name: name, correlationID: id, task: task}:
		p.logf("job=%s correlation_id=%s enqueued", name, id)
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Shutdown stops accepting work, waits for queued tasks to drain, then
// releases the workers. The context bounds the wait; on expiry the running
// tasks are cancelled through their task context.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) worker(n int) {
	defer p.wg.Done()
	for sub := range p.queue {
		p.run(n, sub)
	}
}

func (p *Pool) run(worker int, sub submission) {
	defer func() {
		if r := recover(); r != nil {
			p.logf("job=%s correlation_id=%s worker=%d panic recovered: %v",
				sub.name, sub.correlationID, worker, r)
		}
	}()

	if err := sub.task(p.baseCtx, sub.correlationID); err != nil {
		p.logf("job=%s correlation_id=%s worker=%d failed: %v",
			sub.name, sub.correlationID, worker, err)
		return
	}
	p.logf("job=%s correlation_id=%s worker=%d ok", sub.name, sub.correlationID, worker)
}

func (p *Pool) logf(format string, v ...any) {
	if p.logger != nil {
		p.logger.Printf(format, v...)
	}
}

// Immediate runs tasks synchronously on the caller's goroutine. Used by
// tests and the inspect command where a pool is overkill.
type Immediate struct{}

func (Immediate) Enqueue(ctx context.Context, name string, task Task) (string, error) {
	id := uuid.NewString()
	if err := task(ctx, id); err != nil {
		return id, fmt.Errorf("job %s: %w", name, err)
	}
	return id, nil
}
