package jobs

import (
	"context"
	"sync"
	"time"
)

const defaultQueueCapacity = 256

// MemoryQueue is an in-process Queue backed by a buffered channel. Jobs do
// not survive a restart; use RedisQueue when they must.
type MemoryQueue struct {
	mu     sync.RWMutex
	jobs   chan Job
	closed bool
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates a queue holding up to capacity jobs. A
// non-positive capacity falls back to a sensible default.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &MemoryQueue{jobs: make(chan Job, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (Job, bool, error) {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return Job{}, false, ErrQueueClosed
	}

	// The select runs without the lock so Close can proceed while a worker
	// is parked here. Receiving from a closed channel is safe and wakes the
	// worker immediately.
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case job, ok := <-q.jobs:
		if !ok {
			return Job{}, false, ErrQueueClosed
		}
		return job, true, nil
	case <-timer.C:
		return Job{}, false, nil
	case <-ctx.Done():
		return Job{}, false, ctx.Err()
	}
}

func (q *MemoryQueue) Len(ctx context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return 0, ErrQueueClosed
	}
	return len(q.jobs), nil
}

// Close marks the queue closed and wakes blocked Dequeue calls. It waits
// for in-flight Enqueue calls to finish so none can hit a closed channel.
// Jobs still buffered go only to Dequeue calls already waiting; later
// calls get ErrQueueClosed.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.jobs)
	return nil
}

// MemoryDeadLetter keeps dead jobs in a slice, newest last.
type MemoryDeadLetter struct {
	mu   sync.Mutex
	dead []DeadJob
}

var _ DeadLetter = (*MemoryDeadLetter)(nil)

func NewMemoryDeadLetter() *MemoryDeadLetter {
	return &MemoryDeadLetter{}
}

func (d *MemoryDeadLetter) Add(ctx context.Context, job Job, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dead = append(d.dead, DeadJob{
		Job:      job,
		Reason:   reason,
		FailedAt: time.Now().UTC(),
	})
	return nil
}

func (d *MemoryDeadLetter) List(ctx context.Context, max int) ([]DeadJob, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.dead)
	if max > 0 && max < n {
		n = max
	}
	out := make([]DeadJob, n)
	copy(out, d.dead[:n])
	return out, nil
}

func (d *MemoryDeadLetter) Remove(ctx context.Context, jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, dj := range d.dead {
		if dj.Job.ID == jobID {
			d.dead = append(d.dead[:i], d.dead[i+1:]...)
			return nil
		}
	}
	return ErrJobNotFound
}

func (d *MemoryDeadLetter) Close() error { return nil }
