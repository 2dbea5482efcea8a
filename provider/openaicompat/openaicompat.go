package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/draftmill/genroute"
)

const defaultTimeout = 30 * time.Second

// Adapter is a universal OpenAI-compatible chat completions adapter.
// Works with OpenAI, Grok/xAI, Cerebras, Together, Ollama, and others.
type Adapter struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
}

var _ genroute.ProviderAdapter = (*Adapter)(nil)

// Option configures the adapter.
type Option func(*Adapter)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.httpClient = c }
}

// WithTimeout sets the per-call timeout (default 30s). A call that outlives
// it fails with ErrTimeout and the chain moves on.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// New creates a new OpenAI-compatible adapter.
func New(name, baseURL, apiKey string, opts ...Option) *Adapter {
	a := &Adapter{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewOpenAI creates an adapter for OpenAI.
func NewOpenAI(apiKey string, opts ...Option) *Adapter {
	return New("openai", "https://api.openai.com/v1", apiKey, opts...)
}

// NewGrok creates an adapter for Grok/xAI.
func NewGrok(apiKey string, opts ...Option) *Adapter {
	return New("grok", "https://api.x.ai/v1", apiKey, opts...)
}

// NewCerebras creates an adapter for Cerebras.
func NewCerebras(apiKey string, opts ...Option) *Adapter {
	return New("cerebras", "https://api.cerebras.ai/v1", apiKey, opts...)
}

func (a *Adapter) Name() string { return a.name }

// apiRequest is the OpenAI chat completion request format.
type apiRequest struct {
	Model     string       `json:"model"`
	Messages  []apiMessage `json:"messages"`
	MaxTokens int          `json:"max_tokens,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// apiResponse is the OpenAI chat completion response format.
type apiResponse struct {
	Choices []struct {
		Message      apiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Invoke sends one generation request. Provider trouble surfaces as one of
// the genroute failure sentinels; cancellation of ctx surfaces as the
// context's own error.
func (a *Adapter) Invoke(ctx context.Context, req genroute.ProviderRequest) (genroute.ProviderResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	httpResp, err := a.doRequest(callCtx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return genroute.ProviderResponse{}, ctxErr
		}
		if callCtx.Err() == context.DeadlineExceeded {
			return genroute.ProviderResponse{}, fmt.Errorf("%w: no response within %s", genroute.ErrTimeout, a.timeout)
		}
		return genroute.ProviderResponse{}, fmt.Errorf("%w: %v", genroute.ErrUnavailable, err)
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return genroute.ProviderResponse{}, err
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return genroute.ProviderResponse{}, fmt.Errorf("%w: decode: %v", genroute.ErrMalformedResponse, err)
	}

	if len(resp.Choices) == 0 {
		return genroute.ProviderResponse{}, fmt.Errorf("%w: empty choices", genroute.ErrMalformedResponse)
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return genroute.ProviderResponse{}, fmt.Errorf("%w: empty content", genroute.ErrMalformedResponse)
	}

	return genroute.ProviderResponse{
		Content:   content,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}, nil
}

func (a *Adapter) doRequest(ctx context.Context, req genroute.ProviderRequest) (*http.Response, error) {
	body := apiRequest{
		Model:     req.Model,
		Messages:  []apiMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens: req.MaxTokens,
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := a.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	return a.httpClient.Do(httpReq)
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read body for error context, but don't fail if we can't.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return genroute.ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return genroute.ErrAuthFailed
	default:
		return fmt.Errorf("%w: status %d: %s", genroute.ErrUnavailable, resp.StatusCode, string(body))
	}
}
