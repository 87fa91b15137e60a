// internal/llmclient/anthropic_client.go
package llmclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/funnel-recon/api/schemas"
	"github.com/xkilldash9x/funnel-recon/internal/config"
)

const (
	defaultAnthropicEndpoint = "https://api.anthropic.com/v1/messages"
	defaultAnthropicVersion  = "2023-06-01"
	// statusOverloaded is Anthropic's non-standard "overloaded" status.
	statusOverloaded = 529
)

// AnthropicClient implements schemas.LLMClient against the Messages API.
type AnthropicClient struct {
	apiKey     string
	endpoint   string
	version    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	config     config.LLMConfig
	newBackOff func() backoff.BackOff
}

// -- Anthropic API Request/Response Structures (Internal to this file) --

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropicClient initializes the client. The API key must already be
// resolved by the caller; the client never reads the environment.
func NewAnthropicClient(cfg config.LLMConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultAnthropicEndpoint
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultAnthropicVersion
	}

	c := &AnthropicClient{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		version:    version,
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.APITimeout},
		limiter:    newLimiter(cfg.RequestsPerMinute),
		logger:     logger.Named("llm_client.anthropic"),
	}
	c.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 2 * time.Minute
		b.MaxInterval = 30 * time.Second
		return b
	}
	return c, nil
}

// Generate sends the prompts to the Messages API and joins the returned text
// blocks with newlines. Transient failures are retried with backoff.
func (c *AnthropicClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	body, err := json.Marshal(c.buildRequestPayload(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var responseContent string
	attempt := 0
	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", c.version)

		start := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(start)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("Network error during LLM request, retrying...", zap.Int("attempt", attempt), zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var payload anthropicResponse
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}

		texts := make([]string, 0, len(payload.Content))
		for _, block := range payload.Content {
			if block.Type == "text" {
				texts = append(texts, block.Text)
			}
		}
		if len(texts) == 0 {
			return backoff.Permanent(fmt.Errorf("anthropic API returned no text content (stop reason: %s)", payload.StopReason))
		}

		c.logger.Info("LLM generation complete (Anthropic)",
			zap.Duration("duration", duration),
			zap.String("stop_reason", payload.StopReason),
			zap.Int("input_tokens", payload.Usage.InputTokens),
			zap.Int("output_tokens", payload.Usage.OutputTokens),
		)
		responseContent = strings.Join(texts, "\n")
		return nil
	}

	if err := backoff.Retry(operation, c.policy(ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

// Close is a no-op; the HTTP client holds no resources worth releasing.
func (c *AnthropicClient) Close() error { return nil }

func (c *AnthropicClient) policy(ctx context.Context) backoff.BackOffContext {
	var b backoff.BackOff = c.newBackOff()
	if c.config.MaxRetries >= 0 {
		b = backoff.WithMaxRetries(b, uint64(c.config.MaxRetries))
	}
	return backoff.WithContext(b, ctx)
}

func (c *AnthropicClient) buildRequestPayload(req schemas.GenerationRequest) anthropicRequest {
	maxTokens := req.Options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.config.MaxTokens
	}
	temperature := req.Options.Temperature
	if temperature == 0 {
		// float32 -> float64 widening would otherwise send 0.20000000298.
		temperature = math.Round(float64(c.config.Temperature)*1000) / 1000
	}
	return anthropicRequest{
		Model:       c.config.Model,
		System:      req.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: req.UserPrompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

func (c *AnthropicClient) handleAPIError(statusCode int, body []byte) error {
	msg := string(body)
	var apiErr anthropicError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Type + ": " + apiErr.Error.Message
	}
	c.logger.Error("Anthropic API returned error status", zap.Int("status", statusCode), zap.String("response", msg))
	err := &APIError{Provider: config.ProviderAnthropic, StatusCode: statusCode, Message: msg}

	if isTransientStatus(statusCode) {
		return err
	}
	return backoff.Permanent(err)
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		statusOverloaded:
		return true
	}
	return false
}

// newLimiter returns an unlimited limiter when rpm is zero.
func newLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
}
