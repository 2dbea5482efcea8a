package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/draftmill/genroute"
)

const (
	defaultWorkers      = 2
	defaultPollInterval = time.Second
	defaultRetryBackoff = 5 * time.Second
	defaultMaxRetries   = 1

	// How long shutdown-time requeues and dead letter writes may take
	// once the worker's own context is gone.
	drainTimeout = 5 * time.Second
)

// Generator produces content for a job. *genroute.Orchestrator satisfies
// it.
type Generator interface {
	Generate(ctx context.Context, req genroute.GenerationRequest) (genroute.GenerationResult, error)
}

// Runner drains a Queue with a pool of workers, feeding each job to a
// Generator. Quota-exhausted jobs are dropped since retrying them before
// the window resets cannot succeed. Jobs whose whole fallback chain
// failed get one backoff retry; anything still failing goes to the dead
// letter store.
type Runner struct {
	queue        Queue
	gen          Generator
	dead         DeadLetter
	logger       *slog.Logger
	workers      int
	pollInterval time.Duration
	retryBackoff time.Duration
	maxRetries   int

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithDeadLetter routes terminally failed jobs to store.
func WithDeadLetter(store DeadLetter) RunnerOption {
	return func(r *Runner) { r.dead = store }
}

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPollInterval sets how long an idle worker waits on the queue per
// dequeue call.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithRetryBackoff sets the base delay before retrying a job whose whole
// fallback chain failed. The delay doubles per attempt.
func WithRetryBackoff(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.retryBackoff = d
		}
	}
}

// WithMaxRetries sets how many retries a chain-failed job gets before it
// is dead-lettered.
func WithMaxRetries(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// NewRunner creates a runner draining queue into gen. It does not start
// workers; call Start.
func NewRunner(queue Queue, gen Generator, opts ...RunnerOption) *Runner {
	r := &Runner{
		queue:        queue,
		gen:          gen,
		logger:       slog.Default(),
		workers:      defaultWorkers,
		pollInterval: defaultPollInterval,
		retryBackoff: defaultRetryBackoff,
		maxRetries:   defaultMaxRetries,
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit enqueues a generation request and returns its job ID.
func (r *Runner) Submit(ctx context.Context, callerID, category, prompt string, sourceRefs []string) (string, error) {
	job := Job{
		ID:         uuid.New().String(),
		CallerID:   callerID,
		Category:   category,
		Prompt:     prompt,
		SourceRefs: sourceRefs,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := r.queue.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("jobs: submit: %w", err)
	}
	return job.ID, nil
}

// Start launches the worker pool. Workers run until Stop is called or ctx
// is cancelled.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.work(ctx, i)
	}
	r.logger.Info("job runner started", "workers", r.workers)
}

// Stop tells all workers to finish their current job and exit, then waits
// for them.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
	r.logger.Info("job runner stopped")
}

func (r *Runner) work(ctx context.Context, id int) {
	defer r.wg.Done()
	logger := r.logger.With("worker", id)

	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, ok, err := r.queue.Dequeue(ctx, r.pollInterval)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			logger.Error("dequeue failed", "error", err)
			// Wait out a broken queue instead of spinning on it.
			select {
			case <-time.After(r.pollInterval):
			case <-r.stop:
				return
			case <-ctx.Done():
				return
			}
			continue
		}
		if !ok {
			continue
		}
		r.handle(ctx, logger, job)
	}
}

func (r *Runner) handle(ctx context.Context, logger *slog.Logger, job Job) {
	req := genroute.GenerationRequest{
		CallerID:   job.CallerID,
		Category:   job.Category,
		Prompt:     job.Prompt,
		SourceRefs: job.SourceRefs,
	}

	for {
		job.Attempt++
		result, err := r.gen.Generate(ctx, req)
		if err == nil {
			logger.Info("job done",
				"job", job.ID,
				"caller", job.CallerID,
				"category", job.Category,
				"model", result.ModelUsed,
				"from_cache", result.FromCache,
				"cost", result.Cost,
			)
			return
		}

		if ctx.Err() != nil {
			// The worker is going away mid-job. Requeue so another
			// worker picks it up; at-least-once beats silent loss.
			r.requeue(logger, job)
			return
		}

		var quotaErr *genroute.QuotaExceededError
		if errors.As(err, &quotaErr) {
			// The caller's window is spent. Retrying before it resets
			// can only fail the same way.
			logger.Warn("job dropped, quota exhausted",
				"job", job.ID,
				"caller", job.CallerID,
				"reset_at", quotaErr.ResetAt,
			)
			return
		}

		var chainErr *genroute.AllProvidersFailedError
		if errors.As(err, &chainErr) && job.Attempt <= r.maxRetries {
			backoff := r.retryBackoff << (job.Attempt - 1)
			logger.Warn("job retrying",
				"job", job.ID,
				"attempt", job.Attempt,
				"backoff", backoff,
				"error", err,
			)
			select {
			case <-time.After(backoff):
				continue
			case <-r.stop:
				r.requeue(logger, job)
				return
			case <-ctx.Done():
				r.requeue(logger, job)
				return
			}
		}

		r.deadLetter(logger, job, err)
		return
	}
}

func (r *Runner) requeue(logger *slog.Logger, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := r.queue.Enqueue(ctx, job); err != nil {
		logger.Error("requeue failed, job lost", "job", job.ID, "error", err)
		return
	}
	logger.Info("job requeued", "job", job.ID, "attempt", job.Attempt)
}

func (r *Runner) deadLetter(logger *slog.Logger, job Job, cause error) {
	logger.Error("job dead-lettered",
		"job", job.ID,
		"caller", job.CallerID,
		"category", job.Category,
		"attempts", job.Attempt,
		"error", cause,
	)
	if r.dead == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := r.dead.Add(ctx, job, cause); err != nil {
		logger.Error("dead letter write failed", "job", job.ID, "error", err)
	}
}
