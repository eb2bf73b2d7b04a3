// Package config provides configuration management for the briefing agent.
// It loads settings from environment variables with the BRIEFING_ prefix
// and provides sensible defaults for all configuration options.
//
// Agent overrides (model, round budget) can be persisted to the settings
// table in the SQLite database. LoadConfigFromDB reads from the database
// first and falls back to environment variables. SaveConfig writes the
// overrides back.
package config

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/scrypster/briefing/pkg/types"
)

// Config holds all configuration settings for the briefing agent.
type Config struct {
	Storage       StorageConfig
	LLM           LLMConfig
	Agent         AgentConfig
	Providers     ProvidersConfig
	Ingestion     IngestionConfig
	Observability ObservabilityConfig
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: sqlite, postgres (default: sqlite)
	DataPath      string // Path to data directory (default: ./data)
	PostgresDSN   string // Postgres connection string, required when engine is postgres
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	LLMProvider       string        // Chat provider: ollama, openai, anthropic, gemini (default: openai)
	EmbeddingProvider string        // Embedding provider: ollama, openai, gemini (default: same as LLMProvider, anthropic falls back to ollama)
	EmbeddingModel    string        // Embedding model name (default depends on provider)
	Timeout           time.Duration // Per-call timeout (default: 60s)
	OllamaURL         string        // Ollama API URL (default: http://localhost:11434)
	OllamaModel       string        // Ollama chat model (default: qwen2.5:7b)
	OpenAIAPIKey      string        // OpenAI API key
	OpenAIModel       string        // OpenAI model name (default: gpt-4o-mini)
	OpenAIBaseURL     string        // OpenAI-compatible base URL (default: https://api.openai.com)
	AnthropicAPIKey   string        // Anthropic API key
	AnthropicModel    string        // Anthropic model name (default: claude-3-5-sonnet-20241022)
	GeminiAPIKey      string        // Gemini API key
	GeminiModel       string        // Gemini model name (default: gemini-2.0-flash)
}

// AgentConfig contains the selection agent settings.
type AgentConfig struct {
	// Model overrides the provider's default chat model when set.
	// Env var: BRIEFING_AGENT_MODEL
	// Database key: agent_model
	Model string

	Temperature       float64 // default: 0.3
	MaxToolRounds     int     // default: 10, database key: agent_max_tool_rounds
	TargetSelections  int     // default: 5
	CandidatePoolSize int     // default: 40
	MaxTokens         int     // default: 4096
	EnforceMeetingCap bool    // Apply the meeting slot cap as a hard post-filter (default: false)
	MeetingSlotCap    int     // default: 3
	RunConcurrency    int     // Concurrent user runs (default: 4)
}

// ProvidersConfig contains auxiliary provider settings used by tools.
type ProvidersConfig struct {
	SearchAPIKey string  // Web search API key
	SearchURL    string  // Web search endpoint
	TrendsAPIKey string  // Trends API key
	TrendsURL    string  // Trends endpoint
	RPS          float64 // Shared provider rate limit in requests per second (default: 2)
	Burst        int     // Rate limiter burst (default: 4)
}

// IngestionConfig contains signal ingestion scheduling settings.
type IngestionConfig struct {
	PollInterval time.Duration // Interval after a successful poll (default: 30m)
	BackoffUnit  time.Duration // Backoff unit multiplied by errorCount² (default: 1m)
	BackoffCap   time.Duration // Maximum backoff (default: 2h)
	FeedsFile    string        // YAML file listing feeds to register
	FetchTimeout time.Duration // Per-feed fetch timeout (default: 20s)
}

// ObservabilityConfig contains logging and metrics settings.
type ObservabilityConfig struct {
	MetricsAddr string // Address for the /metrics endpoint; empty disables it
	LogLevel    string // debug, info, warn, error (default: info)
	LogFormat   string // json or console (default: json)
}

// ScoringConfig returns the immutable per-run agent configuration.
func (a AgentConfig) ScoringConfig() types.AgentScoringConfig {
	return types.AgentScoringConfig{
		Model:             a.Model,
		Temperature:       a.Temperature,
		MaxToolRounds:     a.MaxToolRounds,
		TargetSelections:  a.TargetSelections,
		CandidatePoolSize: a.CandidatePoolSize,
		MaxTokens:         a.MaxTokens,
		MeetingSlotCap:    a.MeetingSlotCap,
	}
}

// ChatModel returns the agent model, falling back to the provider default.
func (c *Config) ChatModel() string {
	if c.Agent.Model != "" {
		return c.Agent.Model
	}
	switch c.LLM.LLMProvider {
	case "openai":
		return c.LLM.OpenAIModel
	case "anthropic":
		return c.LLM.AnthropicModel
	case "gemini":
		return c.LLM.GeminiModel
	default:
		return c.LLM.OllamaModel
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch c.Storage.StorageEngine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("config: BRIEFING_POSTGRES_DSN is required for postgres storage")
		}
	default:
		return fmt.Errorf("config: unsupported storage engine %q", c.Storage.StorageEngine)
	}

	switch c.LLM.LLMProvider {
	case "ollama":
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			return errors.New("config: BRIEFING_OPENAI_API_KEY is required for openai provider")
		}
	case "anthropic":
		if c.LLM.AnthropicAPIKey == "" {
			return errors.New("config: BRIEFING_ANTHROPIC_API_KEY is required for anthropic provider")
		}
	case "gemini":
		if c.LLM.GeminiAPIKey == "" {
			return errors.New("config: BRIEFING_GEMINI_API_KEY is required for gemini provider")
		}
	default:
		return fmt.Errorf("config: unsupported llm provider %q", c.LLM.LLMProvider)
	}

	if c.Agent.RunConcurrency < 1 {
		return fmt.Errorf("config: run concurrency must be >= 1, got %d", c.Agent.RunConcurrency)
	}
	if c.Ingestion.BackoffCap < c.Ingestion.BackoffUnit {
		return errors.New("config: backoff cap must not be smaller than backoff unit")
	}
	return nil
}

// LoadConfig loads configuration from environment variables with sensible defaults.
// All environment variables use the BRIEFING_ prefix.
// Use LoadConfigFromDB to also read persisted agent overrides from the database.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	return cfg, nil
}

// LoadConfigFromDB loads configuration from both environment variables and the
// database. The database value takes precedence over the environment variable
// for agent overrides. Falls back to environment variable when no DB entry exists.
//
// Returns an error if db is nil.
func LoadConfigFromDB(db *sql.DB) (*Config, error) {
	if db == nil {
		return nil, errors.New("config: database connection is required")
	}

	cfg := buildBaseConfig()

	model, err := getSetting(db, "agent_model")
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("config: failed to load agent_model from database: %w", err)
	}
	if model != "" {
		cfg.Agent.Model = model
	}

	rounds, err := getSetting(db, "agent_max_tool_rounds")
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("config: failed to load agent_max_tool_rounds from database: %w", err)
	}
	if rounds != "" {
		n, convErr := strconv.Atoi(rounds)
		if convErr != nil || n < 1 {
			return nil, fmt.Errorf("config: invalid agent_max_tool_rounds %q in database", rounds)
		}
		cfg.Agent.MaxToolRounds = n
	}

	return cfg, nil
}

// SaveConfig persists the agent overrides to the settings table using
// upsert semantics.
//
// Returns an error if db is nil.
func (c *Config) SaveConfig(db *sql.DB) error {
	if db == nil {
		return errors.New("config: database connection is required")
	}

	if err := setSetting(db, "agent_model", c.Agent.Model); err != nil {
		return fmt.Errorf("config: failed to save agent_model: %w", err)
	}
	if err := setSetting(db, "agent_max_tool_rounds", strconv.Itoa(c.Agent.MaxToolRounds)); err != nil {
		return fmt.Errorf("config: failed to save agent_max_tool_rounds: %w", err)
	}

	return nil
}

// getSetting retrieves a single setting value by key from the settings table.
// Returns an empty string and sql.ErrNoRows if the key does not exist.
func getSetting(db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// setSetting writes a key-value pair to the settings table using upsert semantics.
func setSetting(db *sql.DB, key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// buildBaseConfig constructs a Config with values from environment variables
// and defaults. This is the shared base for both LoadConfig and LoadConfigFromDB.
func buildBaseConfig() *Config {
	defaults := types.DefaultAgentScoringConfig()
	provider := getEnv("BRIEFING_LLM_PROVIDER", "openai")

	return &Config{
		Storage: StorageConfig{
			StorageEngine: getEnv("BRIEFING_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("BRIEFING_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("BRIEFING_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			LLMProvider:       provider,
			EmbeddingProvider: getEnv("BRIEFING_EMBEDDING_PROVIDER", defaultEmbeddingProvider(provider)),
			EmbeddingModel:    getEnv("BRIEFING_EMBEDDING_MODEL", ""),
			Timeout:           getEnvDuration("BRIEFING_LLM_TIMEOUT", 60*time.Second),
			OllamaURL:         getEnv("BRIEFING_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("BRIEFING_OLLAMA_MODEL", "qwen2.5:7b"),
			OpenAIAPIKey:      getEnv("BRIEFING_OPENAI_API_KEY", ""),
			OpenAIModel:       getEnv("BRIEFING_OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL:     getEnv("BRIEFING_OPENAI_BASE_URL", "https://api.openai.com"),
			AnthropicAPIKey:   getEnv("BRIEFING_ANTHROPIC_API_KEY", ""),
			AnthropicModel:    getEnv("BRIEFING_ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
			GeminiAPIKey:      getEnv("BRIEFING_GEMINI_API_KEY", ""),
			GeminiModel:       getEnv("BRIEFING_GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Agent: AgentConfig{
			Model:             getEnv("BRIEFING_AGENT_MODEL", ""),
			Temperature:       getEnvFloat("BRIEFING_AGENT_TEMPERATURE", defaults.Temperature),
			MaxToolRounds:     getEnvInt("BRIEFING_MAX_TOOL_ROUNDS", defaults.MaxToolRounds),
			TargetSelections:  getEnvInt("BRIEFING_TARGET_SELECTIONS", defaults.TargetSelections),
			CandidatePoolSize: getEnvInt("BRIEFING_CANDIDATE_POOL_SIZE", defaults.CandidatePoolSize),
			MaxTokens:         getEnvInt("BRIEFING_AGENT_MAX_TOKENS", defaults.MaxTokens),
			EnforceMeetingCap: getEnvBool("BRIEFING_ENFORCE_MEETING_CAP", false),
			MeetingSlotCap:    getEnvInt("BRIEFING_MEETING_SLOT_CAP", defaults.MeetingSlotCap),
			RunConcurrency:    getEnvInt("BRIEFING_RUN_CONCURRENCY", 4),
		},
		Providers: ProvidersConfig{
			SearchAPIKey: getEnv("BRIEFING_SEARCH_API_KEY", ""),
			SearchURL:    getEnv("BRIEFING_SEARCH_URL", "https://google.serper.dev"),
			TrendsAPIKey: getEnv("BRIEFING_TRENDS_API_KEY", ""),
			TrendsURL:    getEnv("BRIEFING_TRENDS_URL", "https://serpapi.com"),
			RPS:          getEnvFloat("BRIEFING_PROVIDER_RPS", 2),
			Burst:        getEnvInt("BRIEFING_PROVIDER_BURST", 4),
		},
		Ingestion: IngestionConfig{
			PollInterval: getEnvDuration("BRIEFING_POLL_INTERVAL", 30*time.Minute),
			BackoffUnit:  getEnvDuration("BRIEFING_BACKOFF_UNIT", time.Minute),
			BackoffCap:   getEnvDuration("BRIEFING_BACKOFF_CAP", 2*time.Hour),
			FeedsFile:    getEnv("BRIEFING_FEEDS_FILE", ""),
			FetchTimeout: getEnvDuration("BRIEFING_FETCH_TIMEOUT", 20*time.Second),
		},
		Observability: ObservabilityConfig{
			MetricsAddr: getEnv("BRIEFING_METRICS_ADDR", ""),
			LogLevel:    getEnv("BRIEFING_LOG_LEVEL", "info"),
			LogFormat:   getEnv("BRIEFING_LOG_FORMAT", "json"),
		},
	}
}

// defaultEmbeddingProvider picks an embedding provider for a chat provider.
// Anthropic has no embedding endpoint, so it falls back to a local Ollama.
func defaultEmbeddingProvider(chatProvider string) string {
	if chatProvider == "anthropic" {
		return "ollama"
	}
	return chatProvider
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (e.g. "30m") or
// returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
// If the environment variable exists but cannot be parsed as a boolean,
// it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
