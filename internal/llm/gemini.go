package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey         string
	Model          string        // default: gemini-2.0-flash
	EmbeddingModel string        // default: gemini-embedding-001
	BaseURL        string        // optional override, used by tests
	Timeout        time.Duration // default: 60s
	Limiter        *RateLimiter  // optional shared limiter
	Logger         *zap.Logger   // breaker transitions; optional
}

// GeminiClient implements ChatModel and Embedder on the Gemini API.
type GeminiClient struct {
	cfg            GeminiConfig
	client         *genai.Client
	circuitBreaker *CircuitBreaker
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "gemini-embedding-001"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		cfg:            cfg,
		client:         client,
		circuitBreaker: newProviderBreaker("gemini", cfg.Logger),
	}, nil
}

// Chat sends the conversation to Gemini. System messages become the
// system instruction; assistant turns map to the "model" role.
func (c *GeminiClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	if err := c.cfg.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := executeTyped(ctx, c.circuitBreaker, func() (*ChatResponse, error) {
		return c.chat(ctx, messages, opts)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("gemini circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result, nil
}

func (c *GeminiClient) chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	model := opts.Model
	if model == "" {
		model = c.cfg.Model
	}

	temp := float32(opts.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature: &temp,
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}

	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("gemini returned empty content")
	}

	out := &ChatResponse{Content: text, Model: model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// Embed generates one embedding per text using Gemini's native batch support.
func (c *GeminiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	result, err := executeTyped(ctx, c.circuitBreaker, func() ([][]float32, error) {
		return c.embed(ctx, texts)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("gemini embedding circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result, nil
}

func (c *GeminiClient) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := c.client.Models.EmbedContent(ctx, c.cfg.EmbeddingModel, contents, &genai.EmbedContentConfig{
		TaskType: "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed failed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini returned empty embedding at index %d", i)
		}
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

// GetModel returns the configured chat model name.
func (c *GeminiClient) GetModel() string {
	return c.cfg.Model
}

// Compile-time assertions.
var _ ChatModel = (*GeminiClient)(nil)
var _ Embedder = (*GeminiClient)(nil)
