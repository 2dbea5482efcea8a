package meter

import "github.com/draftmill/genroute"

// Multi fans every event out to several meters in order. It lets a logging
// meter and a health meter watch the same orchestrator.
type Multi []genroute.Meter

var _ genroute.Meter = Multi(nil)

// NewMulti combines meters into one.
func NewMulti(meters ...genroute.Meter) Multi {
	return Multi(meters)
}

func (m Multi) OnAttempt(e genroute.AttemptEvent) {
	for _, mm := range m {
		mm.OnAttempt(e)
	}
}

func (m Multi) OnResult(e genroute.ResultEvent) {
	for _, mm := range m {
		mm.OnResult(e)
	}
}

func (m Multi) OnQuota(e genroute.QuotaEvent) {
	for _, mm := range m {
		mm.OnQuota(e)
	}
}

func (m Multi) OnCache(e genroute.CacheEvent) {
	for _, mm := range m {
		mm.OnCache(e)
	}
}

func (m Multi) OnInvalidation(e genroute.InvalidationEvent) {
	for _, mm := range m {
		mm.OnInvalidation(e)
	}
}
