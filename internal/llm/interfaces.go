package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions controls a single chat call. An empty Model uses the
// client's configured model.
type ChatOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the full, non-streamed model reply with token usage.
type ChatResponse struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// ChatModel is the interface for multi-turn chat completion.
// Implementations never stream and never retry silently.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error)
	GetModel() string
}

// Embedder is the interface for batch vector embeddings.
// The returned slice has one vector per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	GetModel() string
}
