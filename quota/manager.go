// Package quota enforces per-caller daily limits on generation calls and
// spend. Usage is tracked per UTC calendar day; stores key their records by
// day so counters roll over at midnight UTC without a sweeper.
package quota

import (
	"context"
	"fmt"

	"github.com/draftmill/genroute"
)

// Manager checks and records caller usage against tier limits.
type Manager struct {
	store  genroute.QuotaStore
	tiers  genroute.TierResolver
	limits map[string]genroute.TierLimits
}

var _ genroute.QuotaManager = (*Manager)(nil)

// NewManager creates a Manager. limits maps tier names to their daily caps;
// a tier missing from the map, or a cap of zero, means unlimited.
func NewManager(store genroute.QuotaStore, tiers genroute.TierResolver, limits map[string]genroute.TierLimits) *Manager {
	return &Manager{
		store:  store,
		tiers:  tiers,
		limits: limits,
	}
}

// Check reports whether callerID may make one more call at the estimated
// cost. It never mutates usage. On store or resolver trouble it allows the
// call and returns the error alongside, so a flaky store degrades to
// unmetered rather than blocking generation.
func (m *Manager) Check(ctx context.Context, callerID string, estimatedCost float64) (bool, error) {
	tier, err := m.tiers.Tier(ctx, callerID)
	if err != nil {
		return true, fmt.Errorf("quota: resolve tier for %q: %w", callerID, err)
	}

	limits, ok := m.limits[tier]
	if !ok {
		return true, nil
	}

	usage, err := m.store.Usage(ctx, callerID)
	if err != nil {
		return true, fmt.Errorf("quota: read usage for %q: %w", callerID, err)
	}

	if limits.DailyCalls > 0 && usage.Calls+1 > limits.DailyCalls {
		return false, nil
	}
	if limits.DailyCost > 0 && usage.Cost+estimatedCost > limits.DailyCost {
		return false, nil
	}
	return true, nil
}

// Commit records one completed call at its actual cost.
func (m *Manager) Commit(ctx context.Context, callerID string, actualCost float64) error {
	if _, err := m.store.Add(ctx, callerID, 1, actualCost); err != nil {
		return fmt.Errorf("quota: commit usage for %q: %w", callerID, err)
	}
	return nil
}

// Usage returns callerID's recorded usage for the current UTC day.
func (m *Manager) Usage(ctx context.Context, callerID string) (genroute.QuotaUsage, error) {
	return m.store.Usage(ctx, callerID)
}
