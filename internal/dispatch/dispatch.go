// Package dispatch hands work from the ingestion step to the transform step.
// Delivery is asynchronous and at-least-once with no ordering guarantee;
// consumers must be idempotent (the transform engine's terminal-state guard
// carries that burden).
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is the transform invocation payload.
type Task struct {
	JobID     string    `json:"job_id"`
	CreatedAt time.Time `json:"created_at"`
	BlobKey   string    `json:"blob_key"`
	TableName string    `json:"table_name"`
}

// Handler executes a delivered task.
type Handler interface {
	Handle(ctx context.Context, t Task) error
}

// Dispatcher enqueues a task for asynchronous execution. Invoke returns once
// the task is accepted; it never waits for completion.
type Dispatcher interface {
	Invoke(ctx context.Context, t Task) error
}

// Pool runs a fixed number of goroutines consuming a buffered task queue.
type Pool struct {
	handler Handler
	workers int
	tasks   chan Task
}

func NewPool(handler Handler, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		handler: handler,
		workers: workers,
		tasks:   make(chan Task, 64),
	}
}

// Invoke accepts the task for background delivery. It fails only when the
// queue is saturated or the context is done.
func (p *Pool) Invoke(ctx context.Context, t Task) error {
	select {
	case p.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("dispatch queue full")
	}
}

// Run starts worker goroutines and blocks until ctx is cancelled and all
// workers have drained.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := range p.workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.tasks:
			slog.Info("dispatch: handling task", "worker", id, "job", t.JobID, "blobKey", t.BlobKey)
			if err := p.handler.Handle(ctx, t); err != nil {
				// The handler records failures against the job; this is
				// operator visibility only.
				slog.Error("dispatch: task failed", "worker", id, "job", t.JobID, "error", err)
			}
		}
	}
}
