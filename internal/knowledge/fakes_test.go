package knowledge_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrypster/briefing/internal/llm"
	"github.com/scrypster/briefing/internal/storage/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "knowledge.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// fakeEmbedder returns fixed vectors per text and counts calls.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   int
	texts   [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

func (f *fakeEmbedder) GetModel() string { return "fake-embed" }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// scriptedChat replies with responses in order and records prompts.
type scriptedChat struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
}

func (s *scriptedChat) Chat(_ context.Context, messages []llm.Message, _ llm.ChatOptions) (*llm.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.prompts)
	s.prompts = append(s.prompts, messages[len(messages)-1].Content)
	if n < len(s.errs) && s.errs[n] != nil {
		return nil, s.errs[n]
	}
	if n >= len(s.responses) {
		return nil, errors.New("script exhausted")
	}
	return &llm.ChatResponse{Content: s.responses[n], Model: "fake-chat"}, nil
}

func (s *scriptedChat) GetModel() string { return "fake-chat" }
