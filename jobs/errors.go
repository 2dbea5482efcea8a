package jobs

import "errors"

var (
	// ErrQueueClosed is returned when enqueueing to or dequeueing from a
	// queue that has been closed.
	ErrQueueClosed = errors.New("jobs: queue is closed")

	// ErrJobNotFound is returned when removing a job that is not in the
	// dead letter store.
	ErrJobNotFound = errors.New("jobs: job not found")
)
