package genroute

import (
	"context"
	"fmt"
	"time"
)

// InvalidationBus receives "source record changed" events from the data
// layer and evicts the affected entries from every attached cache. Eviction
// is synchronous: once Publish returns, a Get for any entry that listed the
// ref misses.
type InvalidationBus struct {
	caches []ContentCache
	meter  Meter
}

// BusOption configures an InvalidationBus.
type BusOption func(*InvalidationBus)

// WithBusMeter sets the meter notified on each eviction.
func WithBusMeter(m Meter) BusOption {
	return func(b *InvalidationBus) { b.meter = m }
}

// NewInvalidationBus creates a bus over the given caches.
func NewInvalidationBus(caches []ContentCache, opts ...BusOption) *InvalidationBus {
	b := &InvalidationBus{caches: caches}
	for _, opt := range opts {
		opt(b)
	}
	if b.meter == nil {
		b.meter = noopMeter{}
	}
	return b
}

// Attach registers an additional cache with the bus.
func (b *InvalidationBus) Attach(c ContentCache) {
	b.caches = append(b.caches, c)
}

// Publish evicts every cache entry depending on sourceRef. Per-cache
// failures are collected so a broken backend cannot mask evictions in the
// others.
func (b *InvalidationBus) Publish(ctx context.Context, sourceRef string) error {
	event := InvalidationEvent{
		SourceRef: sourceRef,
		ChangedAt: time.Now().UTC(),
	}

	var firstErr error
	for _, c := range b.caches {
		n, err := c.Invalidate(ctx, sourceRef)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("genroute: invalidate %q: %w", sourceRef, err)
			}
			continue
		}
		event.Evicted += n
	}

	b.meter.OnInvalidation(event)
	return firstErr
}
