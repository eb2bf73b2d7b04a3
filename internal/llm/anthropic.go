package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey  string
	Model   string        // default: claude-3-5-sonnet-20241022
	BaseURL string        // default: https://api.anthropic.com
	Timeout time.Duration // default: 60s
	Limiter *RateLimiter  // optional shared limiter
	Logger  *zap.Logger   // breaker transitions; optional
}

// AnthropicClient implements ChatModel using the Anthropic Messages API.
type AnthropicClient struct {
	cfg            AnthropicConfig
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// NewAnthropicClient creates a new Anthropic client with the given configuration.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-20241022"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &AnthropicClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		circuitBreaker: newProviderBreaker("anthropic", cfg.Logger),
	}
}

// anthropicMessagesRequest is the request body for POST /v1/messages.
type anthropicMessagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicMessagesResponse is the response body from POST /v1/messages.
type anthropicMessagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat sends the conversation to Anthropic and returns the reply.
// System messages are lifted into the top-level system field.
func (c *AnthropicClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	if err := c.cfg.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := executeTyped(ctx, c.circuitBreaker, func() (*ChatResponse, error) {
		return c.chat(ctx, messages, opts)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("anthropic circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result, nil
}

func (c *AnthropicClient) chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	model := opts.Model
	if model == "" {
		model = c.cfg.Model
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	reqBody := anthropicMessagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
	}
	var system []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		reqBody.Messages = append(reqBody.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	reqBody.System = strings.Join(system, "\n\n")

	var respData anthropicMessagesResponse
	err := postJSON(ctx, c.client, "anthropic", c.cfg.BaseURL+"/v1/messages", map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	}, reqBody, &respData)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range respData.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("anthropic returned empty content")
	}

	if respData.Model != "" {
		model = respData.Model
	}
	return &ChatResponse{
		Content:          text.String(),
		Model:            model,
		PromptTokens:     respData.Usage.InputTokens,
		CompletionTokens: respData.Usage.OutputTokens,
	}, nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.cfg.Model
}

// Compile-time assertion.
var _ ChatModel = (*AnthropicClient)(nil)
