package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-smart-notifications/internal/domain"
)

type mirrorJob struct {
	op      string
	backend domain.Backend
	ctx     context.Context
	run     func(ctx context.Context) error
}

// mirrorQueue runs best-effort secondary operations one at a time, in the
// order their primaries completed. A full queue drops the job.
type mirrorQueue struct {
	mu      sync.RWMutex
	closed  bool
	jobs    chan mirrorJob
	done    chan struct{}
	timeout time.Duration
	logger  *slog.Logger
	failed  func(ctx context.Context, op string, backend domain.Backend)
}

func newMirrorQueue(size int, timeout time.Duration, logger *slog.Logger, failed func(context.Context, string, domain.Backend)) *mirrorQueue {
	q := &mirrorQueue{
		jobs:    make(chan mirrorJob, size),
		done:    make(chan struct{}),
		timeout: timeout,
		logger:  logger,
		failed:  failed,
	}
	go q.loop()
	return q
}

// enqueue never blocks. The job keeps the caller's context values but not
// its cancellation.
func (q *mirrorQueue) enqueue(ctx context.Context, op string, backend domain.Backend, run func(context.Context) error) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("mirror queue closed, dropping secondary operation", "op", op, "backend", backend)
		return false
	}
	select {
	case q.jobs <- mirrorJob{op: op, backend: backend, ctx: context.WithoutCancel(ctx), run: run}:
		return true
	default:
		q.logger.Warn("mirror queue full, dropping secondary operation", "op", op, "backend", backend)
		q.failed(ctx, op, backend)
		return false
	}
}

func (q *mirrorQueue) loop() {
	defer close(q.done)
	for job := range q.jobs {
		ctx, cancel := context.WithTimeout(job.ctx, q.timeout)
		err := job.run(ctx)
		cancel()
		if err != nil {
			q.logger.Warn("secondary operation failed", "op", job.op, "backend", job.backend, "err", err)
			q.failed(job.ctx, job.op, job.backend)
		}
	}
}

// close stops accepting jobs and waits for queued ones until ctx expires.
func (q *mirrorQueue) close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
