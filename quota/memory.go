package quota

import (
	"context"
	"sync"
	"time"

	"github.com/draftmill/genroute"
)

// MemoryStore is an in-memory QuotaStore with daily reset. Good for tests
// and single-process deployments; counters do not survive restarts and are
// not shared between instances.
type MemoryStore struct {
	mu      sync.RWMutex
	callers map[string]*callerUsage
	now     func() time.Time
}

type callerUsage struct {
	Calls   int64
	Cost    float64
	ResetAt time.Time
}

var _ genroute.QuotaStore = (*MemoryStore)(nil)

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the store's clock. Tests use it to cross day
// boundaries without sleeping.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates a new in-memory quota store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		callers: make(map[string]*callerUsage),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add increments callerID's counters for the current UTC day and returns
// the resulting usage.
func (s *MemoryStore) Add(_ context.Context, callerID string, calls int64, cost float64) (genroute.QuotaUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	cu, ok := s.callers[callerID]
	if !ok {
		cu = &callerUsage{ResetAt: genroute.NextResetUTC(now)}
		s.callers[callerID] = cu
	}
	s.maybeReset(cu, now)

	cu.Calls += calls
	cu.Cost += cost
	return genroute.QuotaUsage{Calls: cu.Calls, Cost: cu.Cost}, nil
}

// Usage returns callerID's usage for the current UTC day.
func (s *MemoryStore) Usage(_ context.Context, callerID string) (genroute.QuotaUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cu, ok := s.callers[callerID]
	if !ok {
		return genroute.QuotaUsage{}, nil
	}

	// Read-only reset check; the record is zeroed on the next Add.
	if !s.now().UTC().Before(cu.ResetAt) {
		return genroute.QuotaUsage{}, nil
	}
	return genroute.QuotaUsage{Calls: cu.Calls, Cost: cu.Cost}, nil
}

func (s *MemoryStore) maybeReset(cu *callerUsage, now time.Time) {
	if now.Before(cu.ResetAt) {
		return
	}
	cu.Calls = 0
	cu.Cost = 0
	cu.ResetAt = genroute.NextResetUTC(now)
}
