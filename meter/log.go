package meter

import (
	"log/slog"

	"github.com/draftmill/genroute"
)

// LogMeter logs orchestration events using slog. Transient provider
// failures log at Warn; auth and malformed-response failures log at Error
// since they point at broken config or contracts, not load. Quota store
// failures also log at Error: a failed check lets spend through unmetered,
// a failed commit loses spend already made.
type LogMeter struct {
	Logger *slog.Logger
}

var _ genroute.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnAttempt(e genroute.AttemptEvent) {
	m.Logger.Info("attempt",
		"caller", e.CallerID,
		"category", e.Category,
		"profile", e.ProfileID,
		"provider", e.Provider,
		"model", e.Model,
		"attempt", e.AttemptNum,
		"estimated_cost", e.EstimatedCost,
	)
}

func (m *LogMeter) OnResult(e genroute.ResultEvent) {
	if e.Success {
		m.Logger.Info("result",
			"caller", e.CallerID,
			"category", e.Category,
			"profile", e.ProfileID,
			"provider", e.Provider,
			"model", e.Model,
			"duration_ms", e.Duration.Milliseconds(),
			"tokens_in", e.TokensIn,
			"tokens_out", e.TokensOut,
			"cost", e.Cost,
		)
		return
	}

	if e.FailureKind == genroute.KindQuotaDenied {
		m.Logger.Info("quota_denied",
			"caller", e.CallerID,
			"category", e.Category,
			"profile", e.ProfileID,
		)
		return
	}

	attrs := []any{
		"caller", e.CallerID,
		"category", e.Category,
		"profile", e.ProfileID,
		"provider", e.Provider,
		"model", e.Model,
		"kind", e.FailureKind,
		"duration_ms", e.Duration.Milliseconds(),
		"error", e.Err,
	}
	switch e.FailureKind {
	case genroute.KindAuthFailed, genroute.KindMalformedResponse:
		m.Logger.Error("attempt_failed", attrs...)
	default:
		m.Logger.Warn("attempt_failed", attrs...)
	}
}

func (m *LogMeter) OnQuota(e genroute.QuotaEvent) {
	switch e.Op {
	case genroute.QuotaCheckError:
		m.Logger.Error("quota_check_failed",
			"caller", e.CallerID,
			"category", e.Category,
			"profile", e.ProfileID,
			"error", e.Err,
		)
	default:
		m.Logger.Error("usage_commit_failed",
			"caller", e.CallerID,
			"category", e.Category,
			"profile", e.ProfileID,
			"error", e.Err,
		)
	}
}

func (m *LogMeter) OnCache(e genroute.CacheEvent) {
	switch e.Op {
	case genroute.CacheReadError, genroute.CacheWriteError:
		m.Logger.Warn("cache_error",
			"op", e.Op,
			"caller", e.CallerID,
			"category", e.Category,
			"fingerprint", e.Fingerprint,
			"error", e.Err,
		)
	default:
		m.Logger.Debug("cache",
			"op", e.Op,
			"caller", e.CallerID,
			"category", e.Category,
			"fingerprint", e.Fingerprint,
		)
	}
}

func (m *LogMeter) OnInvalidation(e genroute.InvalidationEvent) {
	m.Logger.Info("invalidation",
		"source_ref", e.SourceRef,
		"evicted", e.Evicted,
	)
}
