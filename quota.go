package genroute

import "context"

// QuotaManager gates spend against a caller's rolling daily allowance.
//
// Check is non-mutating and advisory: it answers whether the caller may spend
// one more call against the estimated cost. Commit is the only mutation and
// must be atomic against the caller's current-day record; concurrent commits
// from independent workers must not lose updates.
//
// Quota denial is a routing signal for the orchestrator, not an error.
type QuotaManager interface {
	Check(ctx context.Context, callerID string, estimatedCost float64) (bool, error)
	Commit(ctx context.Context, callerID string, actualCost float64) error
}

// QuotaStore is the counters backend underneath a quota manager. Records are
// keyed by (caller, current UTC day); the day rollover at UTC midnight is a
// logical reset, a new day simply reads as zero.
type QuotaStore interface {
	// Add atomically increments the caller's current-day usage and returns
	// the updated totals.
	Add(ctx context.Context, callerID string, calls int64, cost float64) (QuotaUsage, error)

	// Usage returns the caller's current-day consumption without mutating it.
	Usage(ctx context.Context, callerID string) (QuotaUsage, error)
}

// QuotaUsage is a caller's consumption against the current UTC day.
type QuotaUsage struct {
	Calls int64
	Cost  float64
}

// TierResolver maps a caller to its quota tier. The real subscription data
// lives outside this module; StaticTierResolver covers configuration-driven
// deployments and tests.
type TierResolver interface {
	Tier(ctx context.Context, callerID string) (string, error)
}

// StaticTierResolver resolves tiers from a fixed caller→tier table with a
// default for unlisted callers.
type StaticTierResolver struct {
	callers     map[string]string
	defaultTier string
}

var _ TierResolver = (*StaticTierResolver)(nil)

// NewStaticTierResolver builds a resolver from a caller→tier table. Callers
// not in the table resolve to defaultTier.
func NewStaticTierResolver(callers map[string]string, defaultTier string) *StaticTierResolver {
	return &StaticTierResolver{callers: callers, defaultTier: defaultTier}
}

func (r *StaticTierResolver) Tier(_ context.Context, callerID string) (string, error) {
	if tier, ok := r.callers[callerID]; ok {
		return tier, nil
	}
	return r.defaultTier, nil
}
