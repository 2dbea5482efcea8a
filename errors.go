package genroute

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors.
var (
	// Provider attempt failures. All five are retryable at the chain level;
	// adapters classify every transport/HTTP failure into exactly one of them.
	ErrRateLimited       = errors.New("genroute: rate limited by provider")
	ErrAuthFailed        = errors.New("genroute: provider authentication failed")
	ErrTimeout           = errors.New("genroute: provider call timed out")
	ErrMalformedResponse = errors.New("genroute: malformed provider response")
	ErrUnavailable       = errors.New("genroute: provider unavailable")

	// Caller-visible failures.
	ErrQuotaExceeded  = errors.New("genroute: quota exceeded")
	ErrChainExhausted = errors.New("genroute: all providers in chain failed")

	// Configuration/wiring failures surfaced at construction or call time.
	ErrUnknownCategory = errors.New("genroute: no fallback chain for task category")
	ErrNoAdapters      = errors.New("genroute: at least one provider adapter is required")

	// ErrCacheMiss is returned by ContentCache.Get for both true absence and
	// TTL expiry. It never surfaces from Generate.
	ErrCacheMiss = errors.New("genroute: cache miss")
)

// Failure kinds recorded on attempts, one per provider sentinel plus the
// quota-denied routing signal.
const (
	KindRateLimited       = "RATE_LIMITED"
	KindAuthFailed        = "AUTH_FAILED"
	KindTimeout           = "TIMEOUT"
	KindMalformedResponse = "MALFORMED_RESPONSE"
	KindUnavailable       = "UNAVAILABLE"
	KindQuotaDenied       = "QUOTA_DENIED"
)

// FailureKind classifies a provider error into its attempt annotation.
// Unknown errors map to UNAVAILABLE so the chain keeps moving.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrAuthFailed):
		return KindAuthFailed
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformedResponse
	default:
		return KindUnavailable
	}
}

// IsProviderError reports whether err is one of the five provider failure
// sentinels.
func IsProviderError(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrAuthFailed) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrUnavailable)
}

// AllProvidersFailedError is the terminal failure for one GenerationRequest:
// every chain member was tried (or quota-blocked) and none succeeded. It
// carries the full annotated attempt list for diagnostics.
type AllProvidersFailedError struct {
	Category string
	Attempts []Attempt
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("genroute: category=%s attempts=%d: %v",
		e.Category, len(e.Attempts), ErrChainExhausted)
}

func (e *AllProvidersFailedError) Unwrap() error {
	return ErrChainExhausted
}

// QuotaExceededError is raised when every chain member was blocked by the
// caller's quota before any provider call could be made. ResetAt is the next
// UTC midnight, when the daily allowance rolls over.
type QuotaExceededError struct {
	CallerID string
	ResetAt  time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("genroute: caller=%s: %v (resets at %s)",
		e.CallerID, ErrQuotaExceeded, e.ResetAt.Format(time.RFC3339))
}

func (e *QuotaExceededError) Unwrap() error {
	return ErrQuotaExceeded
}

// NextResetUTC returns the next UTC midnight after now, the moment daily
// quota records roll over.
func NextResetUTC(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}
