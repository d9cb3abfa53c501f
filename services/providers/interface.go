package providers

import (
	"context"

	"github.com/shopspring/decimal"
)

// EmbeddingProvider converts text into a fixed-dimension vector. Used
// at query time here; the ingestion pipeline uses the same contract.
type EmbeddingProvider interface {
	// Name returns the provider name (e.g., "openai")
	Name() string

	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float64, error)
}

// GenerationProvider turns a prompt into generated text with usage and
// cost metadata. Latency is measured by the caller around the
// invocation, never self-reported.
type GenerationProvider interface {
	// Name returns the provider name (e.g., "openai")
	Name() string

	// Complete generates text for the prompt. An empty model selects
	// the provider's configured default.
	Complete(ctx context.Context, prompt string, model string) (*Completion, error)
}

// Completion is the unified generation result.
type Completion struct {
	Text      string          `json:"text"`
	TokensIn  int             `json:"tokens_in"`
	TokensOut int             `json:"tokens_out"`
	Cost      decimal.Decimal `json:"cost_usd"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Unavailable marks misconfiguration (e.g., missing credentials)
	// as opposed to a transient provider failure.
	Unavailable bool

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// NewUnavailableError creates a provider error marking misconfiguration.
func NewUnavailableError(provider, message string) *ProviderError {
	return &ProviderError{
		Provider:    provider,
		Code:        "UNAVAILABLE",
		Message:     message,
		Unavailable: true,
	}
}

// IsUnavailable checks whether an error marks provider misconfiguration.
func IsUnavailable(err error) bool {
	if provErr, ok := err.(*ProviderError); ok {
		return provErr.Unavailable
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if provErr, ok := err.(*ProviderError); ok {
		return provErr.Retryable
	}
	return false
}

// ComputeCost returns tokensIn*priceIn/1000 + tokensOut*priceOut/1000
// rounded to 6 decimal places. Prices are per 1K tokens.
func ComputeCost(tokensIn, tokensOut int, pricePer1KIn, pricePer1KOut decimal.Decimal) decimal.Decimal {
	thousand := decimal.NewFromInt(1000)
	in := decimal.NewFromInt(int64(tokensIn)).Mul(pricePer1KIn).Div(thousand)
	out := decimal.NewFromInt(int64(tokensOut)).Mul(pricePer1KOut).Div(thousand)
	return in.Add(out).Round(6)
}
