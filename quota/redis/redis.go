// Package redis provides a Redis-backed QuotaStore for genroute.
//
// Usage lives in one hash per caller per UTC day, updated by an atomic Lua
// script. Day rollover is free: a new day writes a new key and stale keys
// expire on their own. Safe for multi-instance deployments.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/draftmill/genroute"
)

// Store is a Redis-backed QuotaStore.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
	keyTTL    time.Duration
	now       func() time.Time
}

var _ genroute.QuotaStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "genroute:quota:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithKeyTTL sets how long a day's hash outlives its writes (default 48h).
// The TTL only has to exceed 24h; the rest is slack for inspection.
func WithKeyTTL(ttl time.Duration) Option {
	return func(s *Store) { s.keyTTL = ttl }
}

// WithClock overrides the store's clock. Tests use it to cross day
// boundaries without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a new Redis-backed QuotaStore.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "genroute:quota:",
		keyTTL:    48 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) usageKey(callerID string) string {
	day := s.now().UTC().Format("2006-01-02")
	return s.keyPrefix + callerID + ":" + day
}

// addScript atomically bumps both counters and refreshes the key TTL.
// KEYS[1] = usage hash key
// ARGV[1] = calls delta
// ARGV[2] = cost delta
// ARGV[3] = ttl seconds
//
// Returns {calls, cost} after the increment.
var addScript = goredis.NewScript(`
local key = KEYS[1]
local calls = redis.call("HINCRBY", key, "calls", ARGV[1])
local cost = redis.call("HINCRBYFLOAT", key, "cost", ARGV[2])
redis.call("EXPIRE", key, ARGV[3])
return {tostring(calls), cost}
`)

// Add increments callerID's counters for the current UTC day and returns
// the resulting usage.
func (s *Store) Add(ctx context.Context, callerID string, calls int64, cost float64) (genroute.QuotaUsage, error) {
	vals, err := addScript.Run(ctx, s.client,
		[]string{s.usageKey(callerID)},
		calls, strconv.FormatFloat(cost, 'f', -1, 64), int64(s.keyTTL.Seconds()),
	).Slice()
	if err != nil {
		return genroute.QuotaUsage{}, fmt.Errorf("genroute/redis: add usage: %w", err)
	}
	if len(vals) != 2 {
		return genroute.QuotaUsage{}, fmt.Errorf("genroute/redis: unexpected add reply: %v", vals)
	}

	totalCalls, err := strconv.ParseInt(toString(vals[0]), 10, 64)
	if err != nil {
		return genroute.QuotaUsage{}, fmt.Errorf("genroute/redis: parse calls: %w", err)
	}
	totalCost, err := strconv.ParseFloat(toString(vals[1]), 64)
	if err != nil {
		return genroute.QuotaUsage{}, fmt.Errorf("genroute/redis: parse cost: %w", err)
	}

	return genroute.QuotaUsage{Calls: totalCalls, Cost: totalCost}, nil
}

// Usage returns callerID's usage for the current UTC day. A caller with no
// key yet reads as zero.
func (s *Store) Usage(ctx context.Context, callerID string) (genroute.QuotaUsage, error) {
	vals, err := s.client.HMGet(ctx, s.usageKey(callerID), "calls", "cost").Result()
	if err != nil {
		return genroute.QuotaUsage{}, fmt.Errorf("genroute/redis: read usage: %w", err)
	}

	var usage genroute.QuotaUsage
	if vals[0] != nil {
		usage.Calls, _ = strconv.ParseInt(toString(vals[0]), 10, 64)
	}
	if vals[1] != nil {
		usage.Cost, _ = strconv.ParseFloat(toString(vals[1]), 64)
	}
	return usage, nil
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
