// Package jobs runs generation requests asynchronously through a worker
// pool. Callers submit work to a Queue and move on; workers drain the
// queue, invoke the orchestrator, and route failures to a DeadLetter
// store for inspection.
package jobs

import (
	"context"
	"time"
)

// Job is one queued generation request. Jobs are JSON-serialized when the
// backing queue lives outside the process.
type Job struct {
	ID         string    `json:"id"`
	CallerID   string    `json:"caller_id"`
	Category   string    `json:"category"`
	Prompt     string    `json:"prompt"`
	SourceRefs []string  `json:"source_refs,omitempty"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue moves jobs from submitters to workers.
type Queue interface {
	// Enqueue adds a job to the back of the queue.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue pops the next job, waiting up to timeout for one to arrive.
	// The boolean is false when the wait expired with nothing to do.
	Dequeue(ctx context.Context, timeout time.Duration) (Job, bool, error)

	// Len reports how many jobs are waiting.
	Len(ctx context.Context) (int, error)

	// Close shuts the queue down. Blocked Enqueue and Dequeue calls
	// return ErrQueueClosed.
	Close() error
}

// DeadJob is a job that could not be processed, kept with its cause.
type DeadJob struct {
	Job      Job       `json:"job"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// DeadLetter stores jobs whose processing failed terminally.
type DeadLetter interface {
	// Add records a failed job and the error that killed it.
	Add(ctx context.Context, job Job, cause error) error

	// List returns up to max dead jobs. max <= 0 means no limit.
	List(ctx context.Context, max int) ([]DeadJob, error)

	// Remove deletes a dead job by its job ID.
	Remove(ctx context.Context, jobID string) error

	// Close releases the store.
	Close() error
}
