package config_test

import (
	"database/sql"
	"os"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scrypster/briefing/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{
		"BRIEFING_AGENT_MODEL", "BRIEFING_MAX_TOOL_ROUNDS", "BRIEFING_ENFORCE_MEETING_CAP",
		"BRIEFING_POLL_INTERVAL", "BRIEFING_LLM_PROVIDER", "BRIEFING_AGENT_TEMPERATURE",
	} {
		_ = os.Unsetenv(k)
	}

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.StorageEngine)
	assert.Equal(t, "openai", cfg.LLM.LLMProvider)
	assert.Equal(t, 0.3, cfg.Agent.Temperature)
	assert.Equal(t, 10, cfg.Agent.MaxToolRounds)
	assert.Equal(t, 5, cfg.Agent.TargetSelections)
	assert.Equal(t, 40, cfg.Agent.CandidatePoolSize)
	assert.False(t, cfg.Agent.EnforceMeetingCap,
		"Meeting cap must stay a soft prompt rule unless explicitly enabled")
	assert.Equal(t, 3, cfg.Agent.MeetingSlotCap)
	assert.Equal(t, 30*time.Minute, cfg.Ingestion.PollInterval)
	assert.Equal(t, time.Minute, cfg.Ingestion.BackoffUnit)
	assert.Equal(t, 2*time.Hour, cfg.Ingestion.BackoffCap)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BRIEFING_MAX_TOOL_ROUNDS", "6")
	t.Setenv("BRIEFING_AGENT_TEMPERATURE", "0.7")
	t.Setenv("BRIEFING_ENFORCE_MEETING_CAP", "yes")
	t.Setenv("BRIEFING_POLL_INTERVAL", "5m")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Agent.MaxToolRounds)
	assert.Equal(t, 0.7, cfg.Agent.Temperature)
	assert.True(t, cfg.Agent.EnforceMeetingCap)
	assert.Equal(t, 5*time.Minute, cfg.Ingestion.PollInterval)
}

func TestLoadConfig_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("BRIEFING_MAX_TOOL_ROUNDS", "many")
	t.Setenv("BRIEFING_POLL_INTERVAL", "soon")
	t.Setenv("BRIEFING_AGENT_TEMPERATURE", "warm")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Agent.MaxToolRounds)
	assert.Equal(t, 30*time.Minute, cfg.Ingestion.PollInterval)
	assert.Equal(t, 0.3, cfg.Agent.Temperature)
}

func TestEmbeddingProvider_AnthropicFallsBackToOllama(t *testing.T) {
	_ = os.Unsetenv("BRIEFING_EMBEDDING_PROVIDER")
	t.Setenv("BRIEFING_LLM_PROVIDER", "anthropic")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.LLM.EmbeddingProvider)
}

func TestChatModel(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.LLMProvider = "gemini"
	cfg.LLM.GeminiModel = "gemini-2.0-flash"
	assert.Equal(t, "gemini-2.0-flash", cfg.ChatModel())

	cfg.Agent.Model = "gemini-2.5-pro"
	assert.Equal(t, "gemini-2.5-pro", cfg.ChatModel(), "agent model overrides provider default")
}

func TestScoringConfig(t *testing.T) {
	_ = os.Unsetenv("BRIEFING_MAX_TOOL_ROUNDS")
	t.Setenv("BRIEFING_AGENT_MODEL", "gpt-4o")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	sc := cfg.Agent.ScoringConfig()
	assert.Equal(t, "gpt-4o", sc.Model)
	assert.Equal(t, 10, sc.MaxToolRounds)
	assert.NoError(t, sc.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr bool
	}{
		{"ollama sqlite ok", func(c *config.Config) { c.LLM.LLMProvider = "ollama" }, false},
		{"openai without key", func(c *config.Config) { c.LLM.LLMProvider = "openai"; c.LLM.OpenAIAPIKey = "" }, true},
		{"postgres without dsn", func(c *config.Config) {
			c.LLM.LLMProvider = "ollama"
			c.Storage.StorageEngine = "postgres"
			c.Storage.PostgresDSN = ""
		}, true},
		{"unknown engine", func(c *config.Config) { c.LLM.LLMProvider = "ollama"; c.Storage.StorageEngine = "mysql" }, true},
		{"unknown provider", func(c *config.Config) { c.LLM.LLMProvider = "cohere" }, true},
		{"zero concurrency", func(c *config.Config) { c.LLM.LLMProvider = "ollama"; c.Agent.RunConcurrency = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.LoadConfig()
			require.NoError(t, err)
			cfg.Storage.StorageEngine = "sqlite"
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

// TestSaveConfig_PersistsAgentOverrides verifies that SaveConfig writes the
// agent overrides to the settings table.
func TestSaveConfig_PersistsAgentOverrides(t *testing.T) {
	db := openTestDB(t)
	defer func() { _ = db.Close() }()

	cfg := &config.Config{}
	cfg.Agent.Model = "claude-3-5-haiku"
	cfg.Agent.MaxToolRounds = 7

	err := cfg.SaveConfig(db)
	require.NoError(t, err, "SaveConfig must not return an error")

	var value string
	err = db.QueryRow("SELECT value FROM settings WHERE key = 'agent_model'").Scan(&value)
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku", value)

	err = db.QueryRow("SELECT value FROM settings WHERE key = 'agent_max_tool_rounds'").Scan(&value)
	require.NoError(t, err)
	assert.Equal(t, "7", value)
}

// TestLoadConfigFromDB_DBOverridesEnvVar verifies that the database value
// takes precedence over the environment variable.
func TestLoadConfigFromDB_DBOverridesEnvVar(t *testing.T) {
	db := openTestDB(t)
	defer func() { _ = db.Close() }()

	t.Setenv("BRIEFING_AGENT_MODEL", "env-model")
	_, err := db.Exec(`INSERT INTO settings (key, value) VALUES ('agent_model', 'db-model')`)
	require.NoError(t, err)

	cfg, err := config.LoadConfigFromDB(db)
	require.NoError(t, err)

	assert.Equal(t, "db-model", cfg.Agent.Model,
		"Database value must take precedence over environment variable")
}

// TestLoadConfigFromDB_FallsBackToEnvVar verifies that when no database entry
// exists, LoadConfigFromDB falls back to the environment variable.
func TestLoadConfigFromDB_FallsBackToEnvVar(t *testing.T) {
	db := openTestDB(t)
	defer func() { _ = db.Close() }()

	t.Setenv("BRIEFING_AGENT_MODEL", "fallback-model")
	t.Setenv("BRIEFING_MAX_TOOL_ROUNDS", "4")

	cfg, err := config.LoadConfigFromDB(db)
	require.NoError(t, err)

	assert.Equal(t, "fallback-model", cfg.Agent.Model)
	assert.Equal(t, 4, cfg.Agent.MaxToolRounds)
}

func TestLoadConfigFromDB_InvalidRounds(t *testing.T) {
	db := openTestDB(t)
	defer func() { _ = db.Close() }()

	_, err := db.Exec(`INSERT INTO settings (key, value) VALUES ('agent_max_tool_rounds', 'zero')`)
	require.NoError(t, err)

	_, err = config.LoadConfigFromDB(db)
	assert.Error(t, err)
}

// TestSaveConfig_UpdatesExistingEntry verifies that saving the same key twice
// updates the value (upsert semantics).
func TestSaveConfig_UpdatesExistingEntry(t *testing.T) {
	db := openTestDB(t)
	defer func() { _ = db.Close() }()

	cfg := &config.Config{}
	cfg.Agent.MaxToolRounds = 10

	cfg.Agent.Model = "first"
	require.NoError(t, cfg.SaveConfig(db))

	cfg.Agent.Model = "second"
	require.NoError(t, cfg.SaveConfig(db))

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM settings WHERE key = 'agent_model'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "Must have exactly one row for agent_model")

	_ = os.Unsetenv("BRIEFING_AGENT_MODEL")
	loaded, err := config.LoadConfigFromDB(db)
	require.NoError(t, err)
	assert.Equal(t, "second", loaded.Agent.Model, "Value must be updated to latest")
}

func TestLoadConfigFromDB_NilDB(t *testing.T) {
	_, err := config.LoadConfigFromDB(nil)
	assert.Error(t, err, "LoadConfigFromDB with nil db must return an error")
}

func TestSaveConfig_NilDB(t *testing.T) {
	cfg := &config.Config{}
	err := cfg.SaveConfig(nil)
	assert.Error(t, err, "SaveConfig with nil db must return an error")
}

// openTestDB creates an in-memory SQLite database with the settings schema.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err, "Failed to open in-memory SQLite database")
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	require.NoError(t, err, "Failed to create settings table")

	return db
}
