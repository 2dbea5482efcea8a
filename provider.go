package genroute

import "context"

// ProviderAdapter is the uniform call contract to one external AI backend.
// Each adapter translates this contract to and from a single provider's wire
// format and classifies every transport/HTTP failure into one of the five
// provider sentinel errors; callers never see provider-specific shapes.
//
// Invoke must enforce a fixed per-call timeout; exceeding it is ErrTimeout,
// never a hang. Cancellation of the parent context propagates as the
// context's own error, not as a provider error.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "gemini", "openai").
	Name() string

	// Invoke performs one generation call.
	Invoke(ctx context.Context, req ProviderRequest) (ProviderResponse, error)
}

// ProviderRequest is the normalized request handed to an adapter.
type ProviderRequest struct {
	Model     string
	Prompt    string
	MaxTokens int
}

// ProviderResponse is the normalized response from an adapter.
type ProviderResponse struct {
	Content   string
	TokensIn  int64
	TokensOut int64
}
