// Package redis provides a Redis-backed ContentCache for genroute.
//
// Content lives in plain keys with a TTL; a set per source ref indexes the
// fingerprints that depend on it so invalidation can find them. Eviction
// runs as a Lua script that dereferences the index, so the store targets
// single-node deployments.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/draftmill/genroute"
)

// Store is a Redis-backed ContentCache.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ genroute.ContentCache = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "genroute:cache:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// New creates a new Redis-backed ContentCache.
// The client must be a connected *goredis.Client.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "genroute:cache:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) contentKey(fingerprint string) string {
	return s.keyPrefix + "content:" + fingerprint
}

func (s *Store) refKey(sourceRef string) string {
	return s.keyPrefix + "ref:" + sourceRef
}

// Get returns the cached content for fingerprint. Absent and expired
// entries both read as ErrCacheMiss.
func (s *Store) Get(ctx context.Context, fingerprint string) (string, error) {
	content, err := s.client.Get(ctx, s.contentKey(fingerprint)).Result()
	if err == goredis.Nil {
		return "", genroute.ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("genroute/cache: get: %w", err)
	}
	return content, nil
}

// putScript writes one content entry and indexes it under its ref sets.
// KEYS[1]    = content key
// KEYS[2..n] = ref set keys
// ARGV[1]    = content
// ARGV[2]    = ttl in milliseconds
// ARGV[3]    = fingerprint
//
// A ref set's TTL is only ever extended, never shortened. A short-lived
// entry must not cut the index out from under a longer-lived one that
// shares the ref.
var putScript = goredis.NewScript(`
local ttl_ms = tonumber(ARGV[2])
redis.call("SET", KEYS[1], ARGV[1], "PX", ttl_ms)
for i = 2, #KEYS do
    redis.call("SADD", KEYS[i], ARGV[3])
    if redis.call("PTTL", KEYS[i]) < ttl_ms then
        redis.call("PEXPIRE", KEYS[i], ttl_ms)
    end
end
return redis.status_reply("OK")
`)

// Put stores content under fingerprint for ttl and indexes it under each
// source ref. ttl must be positive.
func (s *Store) Put(ctx context.Context, fingerprint, content string, ttl time.Duration, sourceRefs []string) error {
	keys := make([]string, 0, len(sourceRefs)+1)
	keys = append(keys, s.contentKey(fingerprint))
	for _, ref := range sourceRefs {
		keys = append(keys, s.refKey(ref))
	}
	err := putScript.Run(ctx, s.client, keys, content, ttl.Milliseconds(), fingerprint).Err()
	if err != nil {
		return fmt.Errorf("genroute/cache: put: %w", err)
	}
	return nil
}

// invalidateScript evicts every content entry indexed under a ref set.
// KEYS[1] = ref set key
// ARGV[1] = content key prefix
//
// Returns the number of entries actually deleted. Fingerprints whose
// content already expired contribute nothing.
var invalidateScript = goredis.NewScript(`
local refs_key = KEYS[1]
local prefix = ARGV[1]
local evicted = 0
local fps = redis.call("SMEMBERS", refs_key)
for _, fp in ipairs(fps) do
    evicted = evicted + redis.call("DEL", prefix .. fp)
end
redis.call("DEL", refs_key)
return evicted
`)

// Invalidate evicts every entry associated with sourceRef and returns the
// number evicted.
func (s *Store) Invalidate(ctx context.Context, sourceRef string) (int, error) {
	evicted, err := invalidateScript.Run(ctx, s.client,
		[]string{s.refKey(sourceRef)},
		s.keyPrefix+"content:",
	).Int()
	if err != nil {
		return 0, fmt.Errorf("genroute/cache: invalidate: %w", err)
	}
	return evicted, nil
}
