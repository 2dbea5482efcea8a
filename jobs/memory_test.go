package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueRoundTrip(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()
	ctx := context.Background()

	in := Job{
		ID:         "job-1",
		CallerID:   "site-9",
		Category:   "blurb",
		Prompt:     "write a blurb",
		SourceRefs: []string{"tool:42"},
		EnqueuedAt: time.Now().UTC(),
	}
	require.NoError(t, q.Enqueue(ctx, in))

	out, ok, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Prompt, out.Prompt)
	assert.Equal(t, in.SourceRefs, out.SourceRefs)
}

func TestMemoryQueueIsFIFO(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()
	ctx := context.Background()

	for i := range 3 {
		require.NoError(t, q.Enqueue(ctx, Job{ID: fmt.Sprintf("job-%d", i)}))
	}
	for i := range 3 {
		job, ok, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("job-%d", i), job.ID)
	}
}

func TestMemoryQueueDequeueTimesOutEmpty(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()

	start := time.Now()
	_, ok, err := q.Dequeue(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestMemoryQueueLen(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()
	ctx := context.Background()

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, q.Enqueue(ctx, Job{ID: "a"}))
	require.NoError(t, q.Enqueue(ctx, Job{ID: "b"}))

	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()
	require.NoError(t, q.Close())

	err := q.Enqueue(ctx, Job{ID: "late"})
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, _, err = q.Dequeue(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, err = q.Len(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)

	// Closing twice is fine.
	require.NoError(t, q.Close())
}

func TestMemoryQueueCloseWakesBlockedDequeue(t *testing.T) {
	q := NewMemoryQueue(8)

	done := make(chan error, 1)
	go func() {
		_, _, err := q.Dequeue(context.Background(), 5*time.Second)
		done <- err
	}()

	// Let the goroutine reach the blocking select first.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return after close")
	}
}

func TestMemoryQueueDequeueHonorsContext(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, ok, err := q.Dequeue(ctx, 5*time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryQueueConcurrentProducersConsumers(t *testing.T) {
	q := NewMemoryQueue(64)
	defer q.Close()
	ctx := context.Background()

	const jobs = 40
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for j := range jobs / 4 {
				_ = q.Enqueue(ctx, Job{ID: fmt.Sprintf("p%d-j%d", p, j)})
			}
		}(i)
	}

	var mu sync.Mutex
	seen := make(map[string]bool)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, ok, err := q.Dequeue(ctx, 100*time.Millisecond)
				if err != nil || !ok {
					return
				}
				mu.Lock()
				seen[job.ID] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Len(t, seen, jobs)
}

func TestMemoryDeadLetter(t *testing.T) {
	d := NewMemoryDeadLetter()
	ctx := context.Background()

	cause := errors.New("chain burned down")
	require.NoError(t, d.Add(ctx, Job{ID: "job-1", CallerID: "site-9"}, cause))
	require.NoError(t, d.Add(ctx, Job{ID: "job-2", CallerID: "site-9"}, nil))

	dead, err := d.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, dead, 2)
	assert.Equal(t, "job-1", dead[0].Job.ID)
	assert.Equal(t, "chain burned down", dead[0].Reason)
	assert.False(t, dead[0].FailedAt.IsZero())
	assert.Empty(t, dead[1].Reason)

	dead, err = d.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, dead, 1)

	require.NoError(t, d.Remove(ctx, "job-1"))
	dead, err = d.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "job-2", dead[0].Job.ID)

	assert.ErrorIs(t, d.Remove(ctx, "job-1"), ErrJobNotFound)
}
