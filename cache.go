package genroute

import (
	"context"
	"time"
)

// ContentCache stores generated content keyed by request fingerprint.
//
// Get returns ErrCacheMiss for both true absence and TTL expiry; callers
// never distinguish the two. Put is an idempotent upsert: writing over an
// existing unexpired entry replaces it, and concurrent writers to the same
// fingerprint must never produce a torn entry (last-write-wins is fine).
// Invalidate evicts every entry whose source refs contain the given ref and
// returns how many were removed.
//
// Implementations intended for multi-process deployments must back onto a
// shared store; the in-memory cache is only correct single-process.
type ContentCache interface {
	Get(ctx context.Context, fingerprint string) (string, error)
	Put(ctx context.Context, fingerprint, content string, ttl time.Duration, sourceRefs []string) error
	Invalidate(ctx context.Context, sourceRef string) (int, error)
}
