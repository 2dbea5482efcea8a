package gemini

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

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout = 30 * time.Second
)

// Adapter is the Gemini API adapter.
type Adapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
}

var _ genroute.ProviderAdapter = (*Adapter)(nil)

// Option configures the adapter.
type Option func(*Adapter)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(a *Adapter) { a.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.httpClient = c }
}

// WithTimeout sets the per-call timeout (default 30s).
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// New creates a new Gemini adapter.
func New(apiKey string, opts ...Option) *Adapter {
	a := &Adapter{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return "gemini" }

// Gemini API types.
type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Invoke sends one generation request. Provider trouble surfaces as one of
// the genroute failure sentinels; cancellation of ctx surfaces as the
// context's own error.
func (a *Adapter) Invoke(ctx context.Context, req genroute.ProviderRequest) (genroute.ProviderResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.baseURL, req.Model, a.apiKey)
	httpResp, err := a.doRequest(callCtx, url, a.buildRequest(req))
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

	var resp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return genroute.ProviderResponse{}, fmt.Errorf("%w: decode: %v", genroute.ErrMalformedResponse, err)
	}

	if len(resp.Candidates) == 0 {
		return genroute.ProviderResponse{}, fmt.Errorf("%w: empty candidates", genroute.ErrMalformedResponse)
	}
	var content string
	if parts := resp.Candidates[0].Content.Parts; len(parts) > 0 {
		content = parts[0].Text
	}
	if content == "" {
		return genroute.ProviderResponse{}, fmt.Errorf("%w: empty content", genroute.ErrMalformedResponse)
	}

	return genroute.ProviderResponse{
		Content:   content,
		TokensIn:  resp.UsageMetadata.PromptTokenCount,
		TokensOut: resp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

func (a *Adapter) buildRequest(req genroute.ProviderRequest) geminiRequest {
	gr := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}},
		},
	}
	if req.MaxTokens > 0 {
		gr.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: req.MaxTokens}
	}
	return gr
}

func (a *Adapter) doRequest(ctx context.Context, url string, body geminiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	return a.httpClient.Do(httpReq)
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

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
