package meter

import "github.com/draftmill/genroute"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ genroute.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnAttempt(genroute.AttemptEvent)           {}
func (m *NoopMeter) OnResult(genroute.ResultEvent)             {}
func (m *NoopMeter) OnQuota(genroute.QuotaEvent)               {}
func (m *NoopMeter) OnCache(genroute.CacheEvent)               {}
func (m *NoopMeter) OnInvalidation(genroute.InvalidationEvent) {}
