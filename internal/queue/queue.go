package queue

import (
	"context"
	"time"
)

// Enqueuer adds jobs to the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Backend stores jobs.
type Backend interface {
	Enqueuer

	// Dequeue removes and returns the next ready job of the given type.
	// Delayed jobs that are due are promoted first. ok is false when no job
	// is ready. The job stays active until it is acknowledged, retried or
	// failed.
	Dequeue(ctx context.Context, t Type) (job Job, ok bool, err error)

	// Ack marks an active job as done.
	Ack(ctx context.Context, job Job) error

	// Retry schedules job to become ready again at the given time.
	Retry(ctx context.Context, job Job, at time.Time) error

	// Fail moves job to the failed list of its type.
	Fail(ctx context.Context, job Job) error

	// Active returns the number of dequeued jobs of a type still running.
	Active(ctx context.Context, t Type) (int, error)

	// Len returns the number of ready and delayed jobs of a type.
	Len(ctx context.Context, t Type) (int, error)

	// Failed returns the failed jobs of a type, newest first.
	Failed(ctx context.Context, t Type) ([]Job, error)

	Close() error
}
