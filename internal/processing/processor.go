// Package processing runs submission jobs in-process on a pool of goroutines
// fed by a buffered channel.
package processing

import (
	"context"
	"errors"
	"sync"

	"github.com/dharsanguruparan/DocScrub/internal/logger"
	"github.com/dharsanguruparan/DocScrub/internal/metrics"
)

var (
	// ErrNotStarted is returned by Schedule before Start.
	ErrNotStarted = errors.New("processor not started")
	// ErrStopped is returned by Schedule once the Start context is done.
	ErrStopped = errors.New("processor stopped")
)

// Executor runs the job for one submission.
type Executor interface {
	Execute(ctx context.Context, id string) error
}

// Job is one unit of background work. The request id travels with the job so
// its log lines can be correlated with the request that created it.
type Job struct {
	SubmissionID string
	RequestID    string
}

// Processor consumes Jobs. With a positive worker count it runs that many
// goroutines over a queue of the configured depth and Schedule blocks while
// the queue is full. With zero or fewer workers every job gets its own
// goroutine and nothing bounds concurrency.
type Processor struct {
	exec    Executor
	queue   chan Job
	workers int

	mu     sync.Mutex
	base   context.Context
	done   <-chan struct{}
	closed bool // set by Wait; guards wg.Add against a concurrent Wait
	wg     sync.WaitGroup
}

// New builds a Processor.
func New(exec Executor, workers, depth int) *Processor {
	if depth < 0 {
		depth = 0
	}
	p := &Processor{exec: exec, workers: workers}
	if workers > 0 {
		p.queue = make(chan Job, depth)
	}
	return p
}

// Start launches worker goroutines. They exit when ctx is done; jobs still
// waiting in the queue at that point are not run.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	p.base = context.WithoutCancel(ctx)
	p.done = ctx.Done()
	p.mu.Unlock()
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Schedule queues the submission. It waits for queue space until ctx is done.
func (p *Processor) Schedule(ctx context.Context, id string) error {
	job := Job{SubmissionID: id, RequestID: logger.RequestID(ctx)}

	p.mu.Lock()
	done := p.done
	if done == nil {
		p.mu.Unlock()
		return ErrNotStarted
	}
	if p.stoppedLocked() {
		p.mu.Unlock()
		return ErrStopped
	}
	if p.workers <= 0 {
		p.wg.Add(1)
		p.mu.Unlock()
		go func() {
			defer p.wg.Done()
			p.process(job)
		}()
		return nil
	}
	p.mu.Unlock()

	select {
	case p.queue <- job:
		metrics.QueueDepth.Inc()
		return nil
	case <-done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) stoppedLocked() bool {
	if p.closed {
		return true
	}
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until every worker has exited and every running job returned.
// Schedule fails with ErrStopped once Wait has been called.
func (p *Processor) Wait() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			metrics.QueueDepth.Dec()
			p.process(job)
		}
	}
}

func (p *Processor) process(job Job) {
	p.mu.Lock()
	ctx := p.base
	p.mu.Unlock()
	ctx = logger.WithRequestID(ctx, job.RequestID)
	if err := p.exec.Execute(ctx, job.SubmissionID); err != nil {
		logger.FromContext(ctx).Error("job failed", "submission_id", job.SubmissionID, "error", err)
	}
}
