package scheduler

import "context"

// Job is a unit of work executed by the worker pool.
type Job interface {
	// Execute runs the job. The context carries the pool's cancellation and
	// a per-job timeout.
	Execute(ctx context.Context) error

	// Key identifies what the job operates on (an item id, a sweep name).
	// Used for logging.
	Key() string

	// Description returns a human-readable description of the job.
	Description() string
}
