package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// OllamaClient handles communication with Ollama API for local LLM inference.
// It wraps all HTTP calls with circuit breaker protection to prevent cascading failures.
type OllamaClient struct {
	baseURL        string
	client         *http.Client
	circuitBreaker *CircuitBreaker
	model          string
	timeout        time.Duration
}

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434)
	BaseURL string

	// Model is the model name to use for chat or embeddings (default: qwen2.5:7b)
	Model string

	// Timeout is the request timeout duration (default: 60s)
	Timeout time.Duration

	// Logger receives circuit breaker transitions (optional)
	Logger *zap.Logger
}

// ollamaChatRequest represents the request body for /api/chat endpoint
type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// ollamaChatResponse represents the response from /api/chat endpoint
type ollamaChatResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`

	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// embedRequest represents the request body for /api/embed endpoint
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse represents the response from /api/embed endpoint
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaClient creates a new Ollama client with the given configuration.
// If configuration values are not provided, the following defaults are used:
//   - BaseURL: http://localhost:11434
//   - Model: qwen2.5:7b
//   - Timeout: 60 seconds
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "qwen2.5:7b"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &OllamaClient{
		baseURL: config.BaseURL,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		circuitBreaker: newProviderBreaker("ollama", config.Logger),
		model:          config.Model,
		timeout:        config.Timeout,
	}
}

// Chat sends the conversation to Ollama and returns the reply.
// The request is wrapped with circuit breaker protection.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	result, err := executeTyped(ctx, c.circuitBreaker, func() (*ChatResponse, error) {
		return c.chat(ctx, messages, opts)
	})

	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("ollama circuit breaker open: %w", err)
		}
		return nil, err
	}

	return result, nil
}

func (c *OllamaClient) chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := opts.Model
	if model == "" {
		model = c.model
	}
	options := map[string]any{"temperature": opts.Temperature}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}

	var respData ollamaChatResponse
	err := postJSON(ctx, c.client, "ollama", c.baseURL+"/api/chat", nil, ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  options,
	}, &respData)
	if err != nil {
		return nil, err
	}

	return &ChatResponse{
		Content:          respData.Message.Content,
		Model:            model,
		PromptTokens:     respData.PromptEvalCount,
		CompletionTokens: respData.EvalCount,
	}, nil
}

// Embed generates embeddings for the given texts using the configured model.
func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	result, err := executeTyped(ctx, c.circuitBreaker, func() ([][]float32, error) {
		return c.embed(ctx, texts)
	})

	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("ollama circuit breaker open: %w", err)
		}
		return nil, err
	}

	return result, nil
}

func (c *OllamaClient) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var respData embedResponse
	err := postJSON(ctx, c.client, "ollama", c.baseURL+"/api/embed", nil, embedRequest{
		Model: c.model,
		Input: texts,
	}, &respData)
	if err != nil {
		return nil, err
	}

	if len(respData.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(respData.Embeddings), len(texts))
	}
	for i, v := range respData.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("ollama returned empty embedding vector at index %d", i)
		}
	}

	return respData.Embeddings, nil
}

// HealthCheck verifies that Ollama is reachable by checking the /api/version endpoint.
// This does not use circuit breaker protection since it's a health check itself.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// GetModel returns the configured model name.
func (c *OllamaClient) GetModel() string {
	return c.model
}

// Compile-time assertions that OllamaClient satisfies both LLM interfaces.
var _ ChatModel = (*OllamaClient)(nil)
var _ Embedder = (*OllamaClient)(nil)
