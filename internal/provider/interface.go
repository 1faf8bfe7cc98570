// Package provider selects and constructs the LLM chat backend at runtime
// and wraps it in a concurrency-limited, retrying Completer. Supported
// backends: Ollama, OpenAI, Azure OpenAI, Ark, Google Gemini.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	goopenai "github.com/meguminnnnnnnnn/go-openai"
	"google.golang.org/genai"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects the Volcano Engine Ark model runtime.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// Config holds provider configuration resolved from environment variables or
// explicit caller-supplied values.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Model is the model name or deployment ID (e.g. "gpt-4o", "llama3").
	Model string

	// BaseURL overrides the default API endpoint (required for Azure).
	BaseURL string

	// APIKey is the authentication credential for the selected provider.
	APIKey string

	// AzureDeployment is the Azure OpenAI deployment name (Azure only).
	AzureDeployment string

	// AzureAPIVersion is the Azure OpenAI REST API version (Azure only).
	AzureAPIVersion string

	// MaxTokens caps the number of tokens generated per response.
	MaxTokens int

	// Temperature controls response randomness (0.0-1.0).
	Temperature float32
}

// Validate checks backend-specific required fields so callers get a clear
// error at startup rather than on the first request.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		// BaseURL and Model have defaults.
	case BackendOpenAI, BackendArk, BackendGemini:
		if c.APIKey == "" {
			return fmt.Errorf("provider: API key is required for %s backend", c.Backend)
		}
	case BackendAzure:
		if c.APIKey == "" {
			return fmt.Errorf("provider: API key is required for azure backend")
		}
		if c.BaseURL == "" {
			return fmt.Errorf("provider: endpoint is required for azure backend")
		}
		if c.AzureDeployment == "" {
			return fmt.Errorf("provider: deployment name is required for azure backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid: ollama, openai, azure, ark, gemini)", c.Backend)
	}
	return nil
}

// Kind classifies a provider failure for retry and reporting decisions.
type Kind int

const (
	// KindUnknown covers failures with no recognizable classification.
	KindUnknown Kind = iota
	// KindRateLimited marks request-rate rejections (HTTP 429). Retryable.
	KindRateLimited
	// KindOverloaded marks capacity rejections (HTTP 503/529). Retryable.
	KindOverloaded
	// KindTimeout marks deadline expiry. Not retried: the per-call budget
	// is already spent.
	KindTimeout
	// KindAuth marks credential rejections (HTTP 401/403). Never retried.
	KindAuth
)

// String returns the kind's lowercase label.
func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindOverloaded:
		return "overloaded"
	case KindTimeout:
		return "timeout"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure.
type Error struct {
	// Kind is the failure classification.
	Kind Kind

	// Err is the underlying provider error.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// statusCoder is implemented by provider SDK errors carrying an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// statusOf extracts the HTTP status from a provider SDK error. It tries the
// generic StatusCode method first, then the concrete error types the wired
// backends return: the go-openai fork behind the OpenAI and Azure chat
// models exposes the status as a struct field, as does the Gemini SDK.
func statusOf(err error) (int, bool) {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	var gemErr genai.APIError
	if errors.As(err, &gemErr) {
		return gemErr.Code, true
	}
	return 0, false
}

// classify wraps err in an Error with the best-effort failure kind. Already
// classified errors pass through unchanged.
func classify(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}

	if code, ok := statusOf(err); ok {
		switch code {
		case 429:
			return &Error{Kind: KindRateLimited, Err: err}
		case 401, 403:
			return &Error{Kind: KindAuth, Err: err}
		case 503, 529:
			return &Error{Kind: KindOverloaded, Err: err}
		}
	}
	return &Error{Kind: KindUnknown, Err: err}
}

// retryable reports whether the failure is worth retrying with backoff.
func retryable(e *Error) bool {
	return e.Kind == KindRateLimited || e.Kind == KindOverloaded
}

// Factory constructs a ChatModel from a Config. Implementations must be safe
// to call from multiple goroutines.
type Factory interface {
	New(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error)
}
