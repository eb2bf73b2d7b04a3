package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ProviderConfig selects and configures an LLM provider.
type ProviderConfig struct {
	Provider string // openai, anthropic, ollama, gemini
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
	Limiter  *RateLimiter
	Logger   *zap.Logger
}

// NewChatModel creates the appropriate ChatModel based on provider config.
func NewChatModel(ctx context.Context, cfg ProviderConfig) (ChatModel, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout, Limiter: cfg.Limiter, Logger: cfg.Logger,
		}), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout, Limiter: cfg.Limiter, Logger: cfg.Logger,
		}), nil
	case "gemini":
		client, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout, Limiter: cfg.Limiter, Logger: cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout, Logger: cfg.Logger}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbedder creates the appropriate Embedder.
// Returns (nil, nil) for providers that don't support embeddings (Anthropic);
// callers then store entities without vectors.
func NewEmbedder(ctx context.Context, cfg ProviderConfig) (Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout, Logger: cfg.Logger,
		}), nil
	case "gemini":
		client, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey: cfg.APIKey, EmbeddingModel: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout, Logger: cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case "ollama", "":
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.BaseURL, Model: model, Timeout: cfg.Timeout, Logger: cfg.Logger}), nil
	default:
		return nil, nil
	}
}
