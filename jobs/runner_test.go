package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftmill/genroute"
	"github.com/draftmill/genroute/cache"
	"github.com/draftmill/genroute/provider/fixture"
)

type stubGenerator struct {
	mu    sync.Mutex
	reqs  []genroute.GenerationRequest
	calls atomic.Int64
	fn    func(req genroute.GenerationRequest) (genroute.GenerationResult, error)
}

func (s *stubGenerator) Generate(_ context.Context, req genroute.GenerationRequest) (genroute.GenerationResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(req)
	}
	return genroute.GenerationResult{Content: "generated", Succeeded: true}, nil
}

func (s *stubGenerator) requests() []genroute.GenerationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]genroute.GenerationRequest, len(s.reqs))
	copy(out, s.reqs)
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunnerProcessesSubmittedJob(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()
	gen := &stubGenerator{}

	r := NewRunner(q, gen,
		WithWorkers(1),
		WithPollInterval(20*time.Millisecond),
		WithLogger(quietLogger()),
	)
	r.Start(context.Background())
	defer r.Stop()

	id, err := r.Submit(context.Background(), "site-9", "blurb", "write a blurb", []string{"tool:42"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		return gen.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	reqs := gen.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "site-9", reqs[0].CallerID)
	assert.Equal(t, "blurb", reqs[0].Category)
	assert.Equal(t, "write a blurb", reqs[0].Prompt)
	assert.Equal(t, []string{"tool:42"}, reqs[0].SourceRefs)
}

func TestRunnerDropsQuotaExhaustedJobs(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()
	dead := NewMemoryDeadLetter()
	gen := &stubGenerator{
		fn: func(genroute.GenerationRequest) (genroute.GenerationResult, error) {
			return genroute.GenerationResult{}, &genroute.QuotaExceededError{
				CallerID: "site-9",
				ResetAt:  time.Now().Add(time.Hour),
			}
		},
	}

	r := NewRunner(q, gen,
		WithWorkers(1),
		WithPollInterval(20*time.Millisecond),
		WithRetryBackoff(10*time.Millisecond),
		WithDeadLetter(dead),
		WithLogger(quietLogger()),
	)
	r.Start(context.Background())
	defer r.Stop()

	_, err := r.Submit(context.Background(), "site-9", "blurb", "anything", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return gen.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// No retry, no dead letter: the quota window has to reset first and
	// replaying before then would burn the same answer.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), gen.calls.Load())
	deadJobs, err := dead.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, deadJobs)
}

func TestRunnerRetriesChainFailureThenDeadLetters(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()
	dead := NewMemoryDeadLetter()
	gen := &stubGenerator{
		fn: func(req genroute.GenerationRequest) (genroute.GenerationResult, error) {
			return genroute.GenerationResult{}, &genroute.AllProvidersFailedError{
				Category: req.Category,
			}
		},
	}

	r := NewRunner(q, gen,
		WithWorkers(1),
		WithPollInterval(20*time.Millisecond),
		WithRetryBackoff(10*time.Millisecond),
		WithMaxRetries(1),
		WithDeadLetter(dead),
		WithLogger(quietLogger()),
	)
	r.Start(context.Background())
	defer r.Stop()

	id, err := r.Submit(context.Background(), "site-9", "blurb", "doomed", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		deadJobs, listErr := dead.List(context.Background(), 0)
		return listErr == nil && len(deadJobs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// First pass plus one retry.
	assert.Equal(t, int64(2), gen.calls.Load())

	deadJobs, err := dead.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, deadJobs, 1)
	assert.Equal(t, id, deadJobs[0].Job.ID)
	assert.Equal(t, 2, deadJobs[0].Job.Attempt)
	assert.Contains(t, deadJobs[0].Reason, "all providers")
}

func TestRunnerDeadLettersUnknownCategoryWithoutRetry(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()
	dead := NewMemoryDeadLetter()
	gen := &stubGenerator{
		fn: func(req genroute.GenerationRequest) (genroute.GenerationResult, error) {
			return genroute.GenerationResult{}, fmt.Errorf("%w: %q", genroute.ErrUnknownCategory, req.Category)
		},
	}

	r := NewRunner(q, gen,
		WithWorkers(1),
		WithPollInterval(20*time.Millisecond),
		WithRetryBackoff(10*time.Millisecond),
		WithDeadLetter(dead),
		WithLogger(quietLogger()),
	)
	r.Start(context.Background())
	defer r.Stop()

	_, err := r.Submit(context.Background(), "site-9", "no-such-category", "anything", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		deadJobs, listErr := dead.List(context.Background(), 0)
		return listErr == nil && len(deadJobs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A config problem does not improve with retries.
	assert.Equal(t, int64(1), gen.calls.Load())
}

func TestRunnerRedeliveredJobHitsCache(t *testing.T) {
	cfg := genroute.Config{
		PolicyVersion: "v1",
		Profiles: []genroute.ModelProfile{{
			ID:              "fix-small",
			Provider:        "fixture",
			Model:           "fx-1",
			PriceIn1K:       0.001,
			PriceOut1K:      0.002,
			MaxOutputTokens: 256,
			Capabilities:    []string{"blurb"},
		}},
		Chains: map[string][]string{"blurb": {"fix-small"}},
	}
	adapter := fixture.New()
	orc, err := genroute.NewOrchestrator(cfg,
		[]genroute.ProviderAdapter{adapter},
		genroute.WithCache(cache.NewMemoryCache()),
	)
	require.NoError(t, err)

	q := NewMemoryQueue(8)
	defer q.Close()
	r := NewRunner(q, orc,
		WithWorkers(1),
		WithPollInterval(20*time.Millisecond),
		WithLogger(quietLogger()),
	)
	r.Start(context.Background())
	defer r.Stop()

	ctx := context.Background()
	_, err = r.Submit(ctx, "site-9", "blurb", "describe the widget", nil)
	require.NoError(t, err)
	_, err = r.Submit(ctx, "site-9", "blurb", "describe the widget", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, lenErr := q.Len(ctx)
		return lenErr == nil && n == 0 && adapter.CallCount() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	// The duplicate delivery is served from cache, not regenerated.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), adapter.CallCount())
}

func TestRunnerStopIsIdempotentAndDrains(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()
	gen := &stubGenerator{}

	r := NewRunner(q, gen,
		WithWorkers(3),
		WithPollInterval(20*time.Millisecond),
		WithLogger(quietLogger()),
	)
	r.Start(context.Background())

	for i := range 5 {
		_, err := r.Submit(context.Background(), "site-9", "blurb", fmt.Sprintf("job %d", i), nil)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return gen.calls.Load() == 5
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	r.Stop()
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()
	gen := &stubGenerator{}

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(q, gen,
		WithWorkers(2),
		WithPollInterval(20*time.Millisecond),
		WithLogger(quietLogger()),
	)
	r.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after context cancel")
	}
}

func TestRunnerSubmitFailsOnClosedQueue(t *testing.T) {
	q := NewMemoryQueue(8)
	require.NoError(t, q.Close())
	r := NewRunner(q, &stubGenerator{}, WithLogger(quietLogger()))

	_, err := r.Submit(context.Background(), "site-9", "blurb", "anything", nil)
	assert.True(t, errors.Is(err, ErrQueueClosed))
}
