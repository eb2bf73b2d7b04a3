package main

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/briefing/internal/config"
	"github.com/scrypster/briefing/internal/engine"
	"github.com/scrypster/briefing/pkg/types"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "prune", "ingest", "serve", "seed", "settings"})

	user := pruneCmd.Flags().Lookup("user")
	if assert.NotNil(t, user) {
		assert.Equal(t, []string{"true"}, user.Annotations["cobra_annotation_bash_completion_one_required_flag"])
	}
}

func TestPrintOutcome(t *testing.T) {
	var buf bytes.Buffer
	printOutcome(&buf, "u1", nil, fmt.Errorf("run: %w", engine.ErrNoCandidates))
	assert.Equal(t, "u1: no candidates\n", buf.String())

	buf.Reset()
	printOutcome(&buf, "u2", nil, engine.ErrNoSelection)
	assert.Contains(t, buf.String(), "u2: no briefing today")

	buf.Reset()
	printOutcome(&buf, "u3", &engine.BriefingOutput{
		Candidates: []types.CandidateSignal{{Title: "A"}, {Title: "B"}},
		Selections: []types.SignalSelection{{SignalIndex: 1, ReasonLabel: "Trend shift", Confidence: 0.8}},
		Filtered:   3,
	}, nil)
	assert.Equal(t, "u3: 1 selections from 2 candidates (3 filtered, 0 discarded)\n  [1] Trend shift: B (0.80)\n", buf.String())
}

func TestProviderConfigs(t *testing.T) {
	cfg := &config.Config{LLM: config.LLMConfig{
		LLMProvider:       "openai",
		EmbeddingProvider: "ollama",
		OpenAIAPIKey:      "sk-test",
		OpenAIModel:       "gpt-4o-mini",
		OpenAIBaseURL:     "https://api.openai.com",
		OllamaURL:         "http://localhost:11434",
	}}

	chat := chatProviderConfig(cfg, nil, nil)
	assert.Equal(t, "openai", chat.Provider)
	assert.Equal(t, "gpt-4o-mini", chat.Model)
	assert.Equal(t, "sk-test", chat.APIKey)

	embed := embeddingProviderConfig(cfg, nil)
	assert.Equal(t, "ollama", embed.Provider)
	assert.Empty(t, embed.APIKey)
	assert.Equal(t, "http://localhost:11434", embed.BaseURL)
}
