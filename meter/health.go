package meter

import (
	"sync"
	"time"

	"github.com/draftmill/genroute"
)

// HealthState describes one profile's recent provider behavior.
type HealthState int

const (
	Healthy HealthState = iota
	Unhealthy
	Recovering
)

func (s HealthState) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Unhealthy:
		return "unhealthy"
	case Recovering:
		return "recovering"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold = 3
	defaultFailureWindow    = 5 * time.Minute
	defaultRecoveryPeriod   = 30 * time.Second
)

// HealthMeter derives a circuit-breaker style health state per model profile
// from the result stream. It is observational: the orchestrator keeps walking
// chains in configured order regardless, so this feeds dashboards and alerts
// rather than routing.
//
// A profile goes Unhealthy after threshold failures inside the window, and
// Recovering once the recovery period has passed without traffic. Any success
// makes it Healthy again. Quota denials never touch the provider and are not
// counted.
type HealthMeter struct {
	mu        sync.Mutex
	profiles  map[string]*profileHealth
	threshold int
	window    time.Duration
	recovery  time.Duration
	now       func() time.Time
}

type profileHealth struct {
	state       HealthState
	failures    []time.Time
	unhealthyAt time.Time
}

var _ genroute.Meter = (*HealthMeter)(nil)

// HealthOption configures a HealthMeter.
type HealthOption func(*HealthMeter)

// WithFailureThreshold sets how many windowed failures flip a profile to
// Unhealthy.
func WithFailureThreshold(n int) HealthOption {
	return func(m *HealthMeter) {
		if n > 0 {
			m.threshold = n
		}
	}
}

// WithFailureWindow sets the sliding window failures are counted in.
func WithFailureWindow(d time.Duration) HealthOption {
	return func(m *HealthMeter) {
		if d > 0 {
			m.window = d
		}
	}
}

// WithRecoveryPeriod sets how long a profile stays Unhealthy before it is
// reported as Recovering.
func WithRecoveryPeriod(d time.Duration) HealthOption {
	return func(m *HealthMeter) {
		if d > 0 {
			m.recovery = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) HealthOption {
	return func(m *HealthMeter) {
		if now != nil {
			m.now = now
		}
	}
}

// NewHealthMeter creates a HealthMeter with the default threshold of 3
// failures in 5 minutes and a 30 second recovery period.
func NewHealthMeter(opts ...HealthOption) *HealthMeter {
	m := &HealthMeter{
		profiles:  make(map[string]*profileHealth),
		threshold: defaultFailureThreshold,
		window:    defaultFailureWindow,
		recovery:  defaultRecoveryPeriod,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *HealthMeter) OnAttempt(genroute.AttemptEvent) {}

func (m *HealthMeter) OnResult(e genroute.ResultEvent) {
	if e.FailureKind == genroute.KindQuotaDenied {
		return
	}
	if e.Success {
		m.recordSuccess(e.ProfileID)
		return
	}
	m.recordFailure(e.ProfileID)
}

func (m *HealthMeter) OnQuota(genroute.QuotaEvent) {}

func (m *HealthMeter) OnCache(genroute.CacheEvent) {}

func (m *HealthMeter) OnInvalidation(genroute.InvalidationEvent) {}

// State returns the current health of a profile. Profiles with no recorded
// traffic are Healthy.
func (m *HealthMeter) State(profileID string) HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()

	ph, ok := m.profiles[profileID]
	if !ok {
		return Healthy
	}
	if ph.state == Unhealthy && m.now().Sub(ph.unhealthyAt) >= m.recovery {
		ph.state = Recovering
	}
	return ph.state
}

// Snapshot returns the health of every profile seen so far.
func (m *HealthMeter) Snapshot() map[string]HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]HealthState, len(m.profiles))
	for id, ph := range m.profiles {
		if ph.state == Unhealthy && m.now().Sub(ph.unhealthyAt) >= m.recovery {
			ph.state = Recovering
		}
		out[id] = ph.state
	}
	return out
}

func (m *HealthMeter) recordSuccess(profileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ph := m.getOrCreate(profileID)
	ph.state = Healthy
	ph.failures = ph.failures[:0]
}

func (m *HealthMeter) recordFailure(profileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ph := m.getOrCreate(profileID)
	if ph.state == Unhealthy {
		return
	}

	now := m.now()
	cutoff := now.Add(-m.window)
	kept := ph.failures[:0]
	for _, ts := range ph.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	ph.failures = append(kept, now)

	if len(ph.failures) >= m.threshold {
		ph.state = Unhealthy
		ph.unhealthyAt = now
	}
}

func (m *HealthMeter) getOrCreate(profileID string) *profileHealth {
	ph, ok := m.profiles[profileID]
	if !ok {
		ph = &profileHealth{state: Healthy}
		m.profiles[profileID] = ph
	}
	return ph
}
