package genroute

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Orchestrator walks per-category fallback chains, enforcing caller quotas
// and serving repeat prompts from the content cache.
type Orchestrator struct {
	cfg    Config
	chains map[string][]boundProfile
	quota  QuotaManager
	cache  ContentCache
	meter  Meter
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithQuota sets the quota manager. The default allows everything and
// records nothing.
func WithQuota(q QuotaManager) Option {
	return func(o *Orchestrator) { o.quota = q }
}

// WithCache sets the content cache. The default always misses.
func WithCache(c ContentCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(o *Orchestrator) { o.meter = m }
}

// NewOrchestrator validates the config, binds every chain member to its
// adapter, and applies options. Bad wiring (unknown profile, missing
// adapter) fails here; nothing is resolved per request.
func NewOrchestrator(cfg Config, adapters []ProviderAdapter, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(adapters) == 0 {
		return nil, ErrNoAdapters
	}

	adapterMap := make(map[string]ProviderAdapter, len(adapters))
	for _, a := range adapters {
		adapterMap[a.Name()] = a
	}

	chains, err := buildChains(cfg, adapterMap)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:    cfg,
		chains: chains,
	}

	for _, opt := range opts {
		opt(o)
	}

	// Apply defaults after options.
	if o.quota == nil {
		o.quota = noopQuota{}
	}
	if o.cache == nil {
		o.cache = noopCache{}
	}
	if o.meter == nil {
		o.meter = noopMeter{}
	}

	return o, nil
}

// Generate resolves req through its category's chain. The cache is consulted
// first; a hit returns immediately and bills nothing. Otherwise chain members
// are tried strictly in configured order: each gets a quota check with its
// own estimated cost, and every provider failure kind moves on to the next
// member. The error is a *QuotaExceededError when every member was blocked
// by quota, a *AllProvidersFailedError when the chain is exhausted, or the
// context's error when the caller gave up mid-chain.
func (o *Orchestrator) Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	chain, ok := o.chains[req.Category]
	if !ok {
		return GenerationResult{}, fmt.Errorf("%w: %q", ErrUnknownCategory, req.Category)
	}

	fp := req.Fingerprint
	if fp == "" {
		fp = Fingerprint(req.Category, req.Prompt, o.cfg.PolicyVersion)
	}

	content, err := o.cache.Get(ctx, fp)
	switch {
	case err == nil:
		o.meter.OnCache(CacheEvent{Op: CacheHit, Fingerprint: fp, CallerID: req.CallerID, Category: req.Category})
		return GenerationResult{Content: content, Succeeded: true, FromCache: true}, nil
	case errors.Is(err, ErrCacheMiss):
		o.meter.OnCache(CacheEvent{Op: CacheMiss, Fingerprint: fp, CallerID: req.CallerID, Category: req.Category})
	default:
		// A broken cache reads as a miss; generation must not depend on it.
		o.meter.OnCache(CacheEvent{Op: CacheReadError, Fingerprint: fp, CallerID: req.CallerID, Category: req.Category, Err: err})
	}

	promptTokens := EstimateTokens(req.Prompt)

	var (
		attempts []Attempt
		denied   int
	)
	for i, b := range chain {
		estimate := EstimateCost(b.Profile, promptTokens)

		allowed, err := o.quota.Check(ctx, req.CallerID, estimate)
		if err != nil {
			// Quota store trouble never blocks generation.
			allowed = true
			o.meter.OnQuota(QuotaEvent{
				Op:        QuotaCheckError,
				CallerID:  req.CallerID,
				Category:  req.Category,
				ProfileID: b.Profile.ID,
				Err:       err,
			})
		}
		if !allowed {
			denied++
			attempts = append(attempts, Attempt{
				ProfileID:   b.Profile.ID,
				Provider:    b.Profile.Provider,
				Model:       b.Profile.Model,
				FailureKind: KindQuotaDenied,
			})
			o.meter.OnResult(ResultEvent{
				CallerID:    req.CallerID,
				Category:    req.Category,
				ProfileID:   b.Profile.ID,
				Provider:    b.Profile.Provider,
				Model:       b.Profile.Model,
				FailureKind: KindQuotaDenied,
			})
			continue
		}

		o.meter.OnAttempt(AttemptEvent{
			CallerID:      req.CallerID,
			Category:      req.Category,
			ProfileID:     b.Profile.ID,
			Provider:      b.Profile.Provider,
			Model:         b.Profile.Model,
			AttemptNum:    i + 1,
			EstimatedCost: estimate,
		})

		start := time.Now()
		resp, err := b.Adapter.Invoke(ctx, ProviderRequest{
			Model:     b.Profile.Model,
			Prompt:    req.Prompt,
			MaxTokens: b.Profile.MaxOutputTokens,
		})
		duration := time.Since(start)

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return GenerationResult{}, ctxErr
			}

			kind := FailureKind(err)
			attempts = append(attempts, Attempt{
				ProfileID:   b.Profile.ID,
				Provider:    b.Profile.Provider,
				Model:       b.Profile.Model,
				FailureKind: kind,
				Err:         err,
			})
			o.meter.OnResult(ResultEvent{
				CallerID:    req.CallerID,
				Category:    req.Category,
				ProfileID:   b.Profile.ID,
				Provider:    b.Profile.Provider,
				Model:       b.Profile.Model,
				FailureKind: kind,
				Duration:    duration,
				Err:         err,
			})
			continue
		}

		// Success: bill actual usage, then write through to the cache.
		cost := Cost(b.Profile, resp.TokensIn, resp.TokensOut)
		if err := o.quota.Commit(ctx, req.CallerID, cost); err != nil {
			o.meter.OnQuota(QuotaEvent{
				Op:        QuotaCommitError,
				CallerID:  req.CallerID,
				Category:  req.Category,
				ProfileID: b.Profile.ID,
				Err:       err,
			})
		}

		if err := o.cache.Put(ctx, fp, resp.Content, o.cfg.TTL(), req.SourceRefs); err != nil {
			o.meter.OnCache(CacheEvent{Op: CacheWriteError, Fingerprint: fp, CallerID: req.CallerID, Category: req.Category, Err: err})
		} else {
			o.meter.OnCache(CacheEvent{Op: CacheWrite, Fingerprint: fp, CallerID: req.CallerID, Category: req.Category})
		}

		o.meter.OnResult(ResultEvent{
			CallerID:  req.CallerID,
			Category:  req.Category,
			ProfileID: b.Profile.ID,
			Provider:  b.Profile.Provider,
			Model:     b.Profile.Model,
			Success:   true,
			Duration:  duration,
			TokensIn:  resp.TokensIn,
			TokensOut: resp.TokensOut,
			Cost:      cost,
		})

		attempts = append(attempts, Attempt{
			ProfileID: b.Profile.ID,
			Provider:  b.Profile.Provider,
			Model:     b.Profile.Model,
		})
		return GenerationResult{
			Content:   resp.Content,
			ModelUsed: b.Profile.ID,
			TokensIn:  resp.TokensIn,
			TokensOut: resp.TokensOut,
			Cost:      cost,
			Succeeded: true,
			Attempts:  attempts,
		}, nil
	}

	if denied > 0 && denied == len(chain) {
		return GenerationResult{}, &QuotaExceededError{
			CallerID: req.CallerID,
			ResetAt:  NextResetUTC(time.Now()),
		}
	}
	return GenerationResult{}, &AllProvidersFailedError{Category: req.Category, Attempts: attempts}
}

// noopQuota allows every request and records nothing.
type noopQuota struct{}

var _ QuotaManager = noopQuota{}

func (noopQuota) Check(context.Context, string, float64) (bool, error) { return true, nil }
func (noopQuota) Commit(context.Context, string, float64) error        { return nil }

// noopCache never hits and drops writes.
type noopCache struct{}

var _ ContentCache = noopCache{}

func (noopCache) Get(context.Context, string) (string, error) { return "", ErrCacheMiss }
func (noopCache) Put(context.Context, string, string, time.Duration, []string) error {
	return nil
}
func (noopCache) Invalidate(context.Context, string) (int, error) { return 0, nil }
