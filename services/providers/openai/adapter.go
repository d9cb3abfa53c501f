package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/legal-rag/config"
	"github.com/upb/legal-rag/services/providers"
)

const providerName = "openai"

// Low temperature keeps answers consistent across identical requests.
const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 1000
)

// Adapter implements providers.GenerationProvider and
// providers.EmbeddingProvider against the OpenAI HTTP API.
type Adapter struct {
	cfg        config.OpenAIConfig
	httpClient *http.Client
}

// NewAdapter creates an OpenAI adapter from configuration.
func NewAdapter(cfg config.OpenAIConfig) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Adapter{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return providerName
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

// Complete performs a chat completion for the prompt. An empty model
// selects the configured default.
func (a *Adapter) Complete(ctx context.Context, prompt string, model string) (*providers.Completion, error) {
	if a.cfg.APIKey == "" {
		return nil, providers.NewUnavailableError(providerName, "missing API key")
	}

	if model == "" {
		model = a.cfg.Model
	}

	reqBody, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return nil, providers.NewProviderError(providerName, "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	respBody, status, err := a.post(ctx, "/chat/completions", reqBody)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, a.errorFromStatus(status, respBody)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, providers.NewProviderError(providerName, "UNMARSHAL_ERROR", "failed to unmarshal response", status, false, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, providers.NewProviderError(providerName, "EMPTY_RESPONSE", "empty response from provider", status, false, nil)
	}

	pricing := a.cfg.PricingFor(model)
	return &providers.Completion{
		Text:      parsed.Choices[0].Message.Content,
		TokensIn:  parsed.Usage.PromptTokens,
		TokensOut: parsed.Usage.CompletionTokens,
		Cost:      providers.ComputeCost(parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens, pricing.PromptPer1K, pricing.CompletionPer1K),
		Provider:  providerName,
		Model:     model,
	}, nil
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for the given text.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float64, error) {
	if a.cfg.APIKey == "" {
		return nil, providers.NewUnavailableError(providerName, "missing API key")
	}

	reqBody, err := json.Marshal(embeddingRequest{Input: text, Model: a.cfg.EmbeddingModel})
	if err != nil {
		return nil, providers.NewProviderError(providerName, "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	respBody, status, err := a.post(ctx, "/embeddings", reqBody)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, a.errorFromStatus(status, respBody)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, providers.NewProviderError(providerName, "UNMARSHAL_ERROR", "failed to unmarshal response", status, false, err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, providers.NewProviderError(providerName, "EMPTY_RESPONSE", "no embedding returned", status, false, nil)
	}

	return parsed.Data[0].Embedding, nil
}

// post executes the request with bounded retry on transport errors and
// 5xx responses.
func (a *Adapter) post(ctx context.Context, path string, body []byte) ([]byte, int, error) {
	var lastErr error

	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			case <-ctx.Done():
				return nil, 0, providers.NewProviderError(providerName, "CANCELLED", "request cancelled", 0, false, ctx.Err())
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, strings.NewReader(string(body)))
		if err != nil {
			return nil, 0, providers.NewProviderError(providerName, "REQUEST_ERROR", "failed to create request", 0, false, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

		resp, err := a.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode >= 500 && attempt < a.cfg.MaxRetries {
			lastErr = fmt.Errorf("server error: %s", resp.Status)
			continue
		}

		return respBody, resp.StatusCode, nil
	}

	return nil, 0, providers.NewProviderError(providerName, "HTTP_ERROR", "HTTP request failed", 0, true, lastErr)
}

func (a *Adapter) errorFromStatus(status int, body []byte) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	message := "provider request failed"
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return providers.NewUnavailableError(providerName, message)
	case status == http.StatusTooManyRequests || status >= 500:
		return providers.NewProviderError(providerName, "PROVIDER_ERROR", message, status, true, nil)
	default:
		return providers.NewProviderError(providerName, "PROVIDER_ERROR", message, status, false, nil)
	}
}
