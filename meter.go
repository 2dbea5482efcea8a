package genroute

import "time"

// Meter observes orchestration events for monitoring/logging.
type Meter interface {
	// OnAttempt is called before each provider call. Chain members blocked
	// by quota never reach the network and produce only an OnResult.
	OnAttempt(event AttemptEvent)

	// OnResult is called when an attempt completes or is skipped.
	OnResult(event ResultEvent)

	// OnQuota is called when the quota store fails during a check or a
	// commit. Denials are not quota events; they arrive as an OnResult
	// with KindQuotaDenied.
	OnQuota(event QuotaEvent)

	// OnCache is called for cache lookups and write-throughs.
	OnCache(event CacheEvent)

	// OnInvalidation is called after the bus processes a source change.
	OnInvalidation(event InvalidationEvent)
}

// AttemptEvent describes one chain member about to be consulted.
type AttemptEvent struct {
	CallerID      string
	Category      string
	ProfileID     string
	Provider      string
	Model         string
	AttemptNum    int
	EstimatedCost float64
}

// ResultEvent describes the outcome of one chain member.
type ResultEvent struct {
	CallerID    string
	Category    string
	ProfileID   string
	Provider    string
	Model       string
	Success     bool
	FailureKind string // empty on success
	Duration    time.Duration
	TokensIn    int64
	TokensOut   int64
	Cost        float64
	Err         error
}

// Quota event operations.
const (
	QuotaCheckError  = "check_error"
	QuotaCommitError = "commit_error"
)

// QuotaEvent describes one quota store failure the request survived: a
// failed usage read during a check (the attempt proceeds unmetered) or a
// failed commit after success (the spend goes unrecorded).
type QuotaEvent struct {
	Op        string
	CallerID  string
	Category  string
	ProfileID string
	Err       error
}

// Cache event operations.
const (
	CacheHit        = "hit"
	CacheMiss       = "miss"
	CacheWrite      = "write"
	CacheWriteError = "write_error"
	CacheReadError  = "read_error"
)

// CacheEvent describes one cache side effect.
type CacheEvent struct {
	Op          string
	Fingerprint string
	CallerID    string
	Category    string
	Err         error
}

// noopMeter is the default meter; it does nothing.
type noopMeter struct{}

func (noopMeter) OnAttempt(AttemptEvent)           {}
func (noopMeter) OnResult(ResultEvent)             {}
func (noopMeter) OnQuota(QuotaEvent)               {}
func (noopMeter) OnCache(CacheEvent)               {}
func (noopMeter) OnInvalidation(InvalidationEvent) {}
