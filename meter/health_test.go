package meter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/draftmill/genroute"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newHealthUnderTest() (*HealthMeter, *testClock) {
	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	m := NewHealthMeter(
		WithFailureThreshold(3),
		WithFailureWindow(5*time.Minute),
		WithRecoveryPeriod(30*time.Second),
		WithClock(clock.Now),
	)
	return m, clock
}

func failure(profileID string) genroute.ResultEvent {
	return genroute.ResultEvent{ProfileID: profileID, FailureKind: genroute.KindUnavailable}
}

func success(profileID string) genroute.ResultEvent {
	return genroute.ResultEvent{ProfileID: profileID, Success: true}
}

func TestHealthMeterStartsHealthy(t *testing.T) {
	m, _ := newHealthUnderTest()
	assert.Equal(t, Healthy, m.State("fast"))
}

func TestHealthMeterFlipsAtThreshold(t *testing.T) {
	m, _ := newHealthUnderTest()

	m.OnResult(failure("fast"))
	m.OnResult(failure("fast"))
	assert.Equal(t, Healthy, m.State("fast"))

	m.OnResult(failure("fast"))
	assert.Equal(t, Unhealthy, m.State("fast"))
}

func TestHealthMeterWindowPrunesOldFailures(t *testing.T) {
	m, clock := newHealthUnderTest()

	m.OnResult(failure("fast"))
	m.OnResult(failure("fast"))

	// The first two fall out of the 5 minute window.
	clock.Advance(6 * time.Minute)
	m.OnResult(failure("fast"))
	assert.Equal(t, Healthy, m.State("fast"))
}

func TestHealthMeterSuccessResets(t *testing.T) {
	m, _ := newHealthUnderTest()

	for range 3 {
		m.OnResult(failure("fast"))
	}
	assert.Equal(t, Unhealthy, m.State("fast"))

	m.OnResult(success("fast"))
	assert.Equal(t, Healthy, m.State("fast"))
}

func TestHealthMeterRecoversAfterPeriod(t *testing.T) {
	m, clock := newHealthUnderTest()

	for range 3 {
		m.OnResult(failure("fast"))
	}
	assert.Equal(t, Unhealthy, m.State("fast"))

	clock.Advance(31 * time.Second)
	assert.Equal(t, Recovering, m.State("fast"))
}

func TestHealthMeterIgnoresQuotaDenials(t *testing.T) {
	m, _ := newHealthUnderTest()

	// Denials never reach the provider and say nothing about its health.
	for range 10 {
		m.OnResult(genroute.ResultEvent{ProfileID: "fast", FailureKind: genroute.KindQuotaDenied})
	}
	assert.Equal(t, Healthy, m.State("fast"))
}

func TestHealthMeterTracksProfilesIndependently(t *testing.T) {
	m, _ := newHealthUnderTest()

	for range 3 {
		m.OnResult(failure("fast"))
	}
	m.OnResult(success("big"))

	assert.Equal(t, Unhealthy, m.State("fast"))
	assert.Equal(t, Healthy, m.State("big"))

	snap := m.Snapshot()
	assert.Equal(t, Unhealthy, snap["fast"])
	assert.Equal(t, Healthy, snap["big"])
}

func TestHealthStateString(t *testing.T) {
	assert.Equal(t, "healthy", Healthy.String())
	assert.Equal(t, "unhealthy", Unhealthy.String())
	assert.Equal(t, "recovering", Recovering.String())
	assert.Equal(t, "unknown", HealthState(42).String())
}
