package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/seralind/ragcore/helper"
	"golang.org/x/sync/semaphore"
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Queue runs fire-and-forget tasks on a bounded number of workers. It is
// explicit on purpose: every background effect goes through Submit, so
// shutdown can drain it and tests can wait for it instead of sleeping.
type Queue struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	wg        sync.WaitGroup
	mu        sync.Mutex
	closed    bool
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewQueue creates a task queue with the given worker limit.
func NewQueue(workers int64, logger *slog.Logger) (*Queue, error) {
	if workers <= 0 {
		return nil, helper.NewError("task queue", fmt.Errorf("workers must be positive, got %d", workers))
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		sem:    semaphore.NewWeighted(workers),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}, nil
}

// Submit enqueues a task. The task runs as soon as a worker slot is free;
// its error is logged and counted, never returned to the submitter.
func (q *Queue) Submit(name string, task Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return helper.NewError("submit task", fmt.Errorf("queue is closed"))
	}
	q.wg.Add(1)
	q.mu.Unlock()

	q.submitted.Add(1)

	go func() {
		defer q.wg.Done()

		if err := q.sem.Acquire(q.ctx, 1); err != nil {
			q.failed.Add(1)
			q.logger.Warn("Task dropped during shutdown", "task", name)
			return
		}
		defer q.sem.Release(1)

		if err := task(q.ctx); err != nil {
			q.failed.Add(1)
			q.logger.Error("Background task failed", "task", name, "error", err)
			return
		}
		q.completed.Add(1)
	}()

	return nil
}

// Drain blocks until all submitted tasks have finished or ctx expires. The
// queue stays open for new submissions.
func (q *Queue) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return helper.NewError("drain queue", ctx.Err())
	}
}

// Close stops accepting tasks and waits for in-flight ones until ctx
// expires, after which remaining tasks are cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	err := q.Drain(ctx)
	q.cancel()
	return err
}

// Stats returns the submitted, completed and failed task counts.
func (q *Queue) Stats() (submitted int64, completed int64, failed int64) {
	return q.submitted.Load(), q.completed.Load(), q.failed.Load()
}
