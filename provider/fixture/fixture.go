// Package fixture provides a deterministic ProviderAdapter for tests and
// local development. It never touches the network.
package fixture

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/draftmill/genroute"
)

// Adapter is a canned-response provider adapter.
type Adapter struct {
	name         string
	latency      time.Duration
	failAfter    int
	callCount    atomic.Int64
	staticErr    error
	content      string
	tokensIn     int64
	tokensOut    int64
	responseFunc func(genroute.ProviderRequest) (genroute.ProviderResponse, error)
}

var _ genroute.ProviderAdapter = (*Adapter)(nil)

// Option configures a fixture Adapter.
type Option func(*Adapter)

// New creates a fixture adapter with the given options.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		name:      "fixture",
		content:   "canned response",
		tokensIn:  10,
		tokensOut: 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WithName sets the adapter name.
func WithName(name string) Option {
	return func(a *Adapter) { a.name = name }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(a *Adapter) { a.latency = d }
}

// WithError makes the adapter always return this error.
func WithError(err error) Option {
	return func(a *Adapter) { a.staticErr = err }
}

// WithFailAfter makes the adapter fail with ErrUnavailable after n
// successful calls.
func WithFailAfter(n int) Option {
	return func(a *Adapter) { a.failAfter = n }
}

// WithContent sets the canned response content.
func WithContent(content string) Option {
	return func(a *Adapter) { a.content = content }
}

// WithTokens sets the token counts reported with each response.
func WithTokens(in, out int64) Option {
	return func(a *Adapter) { a.tokensIn, a.tokensOut = in, out }
}

// WithResponseFunc sets a custom response function; it overrides the
// canned content and tokens.
func WithResponseFunc(fn func(genroute.ProviderRequest) (genroute.ProviderResponse, error)) Option {
	return func(a *Adapter) { a.responseFunc = fn }
}

func (a *Adapter) Name() string { return a.name }

// Invoke returns the canned response or the configured failure.
func (a *Adapter) Invoke(ctx context.Context, req genroute.ProviderRequest) (genroute.ProviderResponse, error) {
	if a.latency > 0 {
		select {
		case <-time.After(a.latency):
		case <-ctx.Done():
			return genroute.ProviderResponse{}, ctx.Err()
		}
	}

	count := a.callCount.Add(1)

	if a.staticErr != nil {
		return genroute.ProviderResponse{}, a.staticErr
	}

	if a.failAfter > 0 && int(count) > a.failAfter {
		return genroute.ProviderResponse{}, genroute.ErrUnavailable
	}

	if a.responseFunc != nil {
		return a.responseFunc(req)
	}

	return genroute.ProviderResponse{
		Content:   a.content,
		TokensIn:  a.tokensIn,
		TokensOut: a.tokensOut,
	}, nil
}

// CallCount returns the number of calls made to the adapter.
func (a *Adapter) CallCount() int64 { return a.callCount.Load() }
