package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/scrypster/briefing/internal/config"
	"github.com/scrypster/briefing/internal/engine"
	"github.com/scrypster/briefing/internal/ingestion"
	"github.com/scrypster/briefing/internal/knowledge"
	"github.com/scrypster/briefing/internal/llm"
	"github.com/scrypster/briefing/internal/metrics"
	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/internal/storage/postgres"
	"github.com/scrypster/briefing/internal/storage/sqlite"
	"github.com/scrypster/briefing/internal/tools"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	store    storage.Store
	chat     llm.ChatModel
	model    *knowledge.Model
	agent    *engine.Agent
	pipeline *engine.Pipeline
	pruner   *knowledge.Pruner
	poller   *ingestion.Poller
	metrics  *metrics.PromRecorder
	logger   *zap.Logger
}

// bootstrap opens storage, applies persisted overrides and wires the agent
// stack. The caller must Close the app.
func bootstrap(ctx context.Context) (*app, error) {
	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Persisted overrides live in the sqlite settings table.
	if sq, ok := store.(*sqlite.Store); ok {
		withOverrides, err := config.LoadConfigFromDB(sq.GetDB())
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		cfg.Agent = withOverrides.Agent
	}

	if err := cfg.Validate(); err != nil {
		_ = store.Close()
		return nil, err
	}

	a, err := wire(ctx, cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func wire(ctx context.Context, cfg *config.Config, store storage.Store, logger *zap.Logger) (*app, error) {
	// One limiter per provider family; every client in the family shares it.
	llmLimiter := llm.NewRateLimiter(cfg.Providers.RPS, cfg.Providers.Burst)
	toolLimiter := llm.NewRateLimiter(cfg.Providers.RPS, cfg.Providers.Burst)

	chat, err := llm.NewChatModel(ctx, chatProviderConfig(cfg, llmLimiter, logger.Named("llm")))
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	embedder, err := llm.NewEmbedder(ctx, embeddingProviderConfig(cfg, logger.Named("embedder")))
	if err != nil {
		logger.Warn("embedder unavailable, knowledge lookups fall back to substring only", zap.Error(err))
		embedder = nil
	}

	recorder := metrics.NewPrometheus()
	model := knowledge.NewModel(store, embedder, logger.Named("knowledge"))

	deps := tools.DepsFromStore(store, model)
	if search := tools.NewHTTPSearch(tools.SearchConfig{
		APIKey:  cfg.Providers.SearchAPIKey,
		BaseURL: cfg.Providers.SearchURL,
		Limiter: toolLimiter,
	}); search != nil {
		deps.Search = search
	}
	if trends := tools.NewSerpTrends(tools.TrendsConfig{
		APIKey:  cfg.Providers.TrendsAPIKey,
		BaseURL: cfg.Providers.TrendsURL,
		Limiter: toolLimiter,
	}); trends != nil {
		deps.Trends = trends
	}
	executor := tools.NewExecutor(deps, recorder, logger.Named("tools"))

	opts := engine.DefaultOptions()
	opts.CallTimeout = cfg.LLM.Timeout
	agent := engine.NewAgent(chat, executor, store, recorder, logger.Named("agent"), opts)

	scoring := cfg.Agent.ScoringConfig()
	scoring.Model = cfg.ChatModel()
	pipeline := engine.NewPipeline(store, agent, engine.PipelineConfig{
		Scoring:           scoring,
		EnforceMeetingCap: cfg.Agent.EnforceMeetingCap,
		Concurrency:       cfg.Agent.RunConcurrency,
	}, logger.Named("pipeline"))

	backoff := ingestion.Backoff{
		Interval: cfg.Ingestion.PollInterval,
		Unit:     cfg.Ingestion.BackoffUnit,
		Cap:      cfg.Ingestion.BackoffCap,
	}
	poller := ingestion.NewPoller(store, ingestion.NewHTTPFetcher(cfg.Ingestion.FetchTimeout), backoff, recorder, logger.Named("ingestion"))

	return &app{
		cfg:      cfg,
		store:    store,
		chat:     chat,
		model:    model,
		agent:    agent,
		pipeline: pipeline,
		pruner:   knowledge.NewPruner(store, store, chat, logger.Named("pruner")),
		poller:   poller,
		metrics:  recorder,
		logger:   logger,
	}, nil
}

// Close releases the store.
func (a *app) Close() error {
	return a.store.Close()
}

func openStore(cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		store, err := postgres.NewStore(cfg.Storage.PostgresDSN, logger.Named("postgres"))
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		path := dbPath
		if path == "" {
			if err := os.MkdirAll(cfg.Storage.DataPath, 0o750); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
			path = filepath.Join(cfg.Storage.DataPath, "briefing.db")
		}
		store, err := sqlite.NewStore(path, logger.Named("sqlite"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", path, err)
		}
		return store, nil
	}
}

func chatProviderConfig(cfg *config.Config, limiter *llm.RateLimiter, logger *zap.Logger) llm.ProviderConfig {
	pc := llm.ProviderConfig{
		Provider: cfg.LLM.LLMProvider,
		Model:    cfg.ChatModel(),
		Timeout:  cfg.LLM.Timeout,
		Limiter:  limiter,
		Logger:   logger,
	}
	pc.APIKey, pc.BaseURL = providerCredentials(cfg, cfg.LLM.LLMProvider)
	return pc
}

func embeddingProviderConfig(cfg *config.Config, logger *zap.Logger) llm.ProviderConfig {
	pc := llm.ProviderConfig{
		Provider: cfg.LLM.EmbeddingProvider,
		Model:    cfg.LLM.EmbeddingModel,
		Timeout:  cfg.LLM.Timeout,
		Logger:   logger,
	}
	pc.APIKey, pc.BaseURL = providerCredentials(cfg, cfg.LLM.EmbeddingProvider)
	return pc
}

func providerCredentials(cfg *config.Config, provider string) (apiKey, baseURL string) {
	switch provider {
	case "openai":
		return cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIBaseURL
	case "anthropic":
		return cfg.LLM.AnthropicAPIKey, ""
	case "gemini":
		return cfg.LLM.GeminiAPIKey, ""
	default:
		return "", cfg.LLM.OllamaURL
	}
}
