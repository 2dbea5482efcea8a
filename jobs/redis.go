package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "genroute:jobs:"

// RedisQueue is a Queue backed by a Redis list. Jobs survive process
// restarts and can be drained by workers in other processes.
type RedisQueue struct {
	client goredis.Cmdable
	key    string
}

var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue creates a queue on the given client. name distinguishes
// queues sharing one Redis; jobs live in the list genroute:jobs:<name>.
func NewRedisQueue(client goredis.Cmdable, name string) *RedisQueue {
	return &RedisQueue{
		client: client,
		key:    redisKeyPrefix + name,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobs: marshal job %s: %w", job.ID, err)
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("jobs: enqueue job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (Job, bool, error) {
	res, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, goredis.Nil) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("jobs: dequeue: %w", err)
	}
	// BLPOP returns [key, value].
	if len(res) != 2 {
		return Job{}, false, fmt.Errorf("jobs: dequeue: unexpected reply of %d elements", len(res))
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return Job{}, false, fmt.Errorf("jobs: unmarshal job: %w", err)
	}
	return job, true, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("jobs: queue length: %w", err)
	}
	return int(n), nil
}

// Close is a no-op. The Redis client is owned by the caller.
func (q *RedisQueue) Close() error { return nil }

// RedisDeadLetter stores dead jobs in a Redis hash keyed by job ID.
type RedisDeadLetter struct {
	client goredis.Cmdable
	key    string
}

var _ DeadLetter = (*RedisDeadLetter)(nil)

// NewRedisDeadLetter creates a dead letter store next to the queue of the
// same name, in the hash genroute:jobs:<name>:dead.
func NewRedisDeadLetter(client goredis.Cmdable, name string) *RedisDeadLetter {
	return &RedisDeadLetter{
		client: client,
		key:    redisKeyPrefix + name + ":dead",
	}
}

func (d *RedisDeadLetter) Add(ctx context.Context, job Job, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	data, err := json.Marshal(DeadJob{
		Job:      job,
		Reason:   reason,
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("jobs: marshal dead job %s: %w", job.ID, err)
	}
	if err := d.client.HSet(ctx, d.key, job.ID, data).Err(); err != nil {
		return fmt.Errorf("jobs: dead letter job %s: %w", job.ID, err)
	}
	return nil
}

func (d *RedisDeadLetter) List(ctx context.Context, max int) ([]DeadJob, error) {
	entries, err := d.client.HGetAll(ctx, d.key).Result()
	if err != nil {
		return nil, fmt.Errorf("jobs: list dead jobs: %w", err)
	}

	out := make([]DeadJob, 0, len(entries))
	for _, raw := range entries {
		if max > 0 && len(out) >= max {
			break
		}
		var dj DeadJob
		if err := json.Unmarshal([]byte(raw), &dj); err != nil {
			// One corrupt entry should not hide the rest.
			continue
		}
		out = append(out, dj)
	}
	return out, nil
}

func (d *RedisDeadLetter) Remove(ctx context.Context, jobID string) error {
	n, err := d.client.HDel(ctx, d.key, jobID).Result()
	if err != nil {
		return fmt.Errorf("jobs: remove dead job %s: %w", jobID, err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (d *RedisDeadLetter) Close() error { return nil }
