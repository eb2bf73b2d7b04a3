package types

import (
	"fmt"
	"time"
)

// CandidateSignal is one candidate piece of information offered to a
// scoring run. It is identified only by its index in the run's pool.
type CandidateSignal struct {
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	SourceURL   string     `json:"source_url,omitempty"`
	SourceLabel string     `json:"source_label,omitempty"`
	Layer       string     `json:"layer"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Text returns title and summary joined for text matching.
func (s CandidateSignal) Text() string {
	return s.Title + " " + s.Summary
}

// SignalSelection is a single justified pick produced by the agent.
type SignalSelection struct {
	SignalIndex       int             `json:"signal_index"`
	Reason            SelectionReason `json:"reason"`
	ReasonLabel       string          `json:"reason_label"`
	Confidence        float64         `json:"confidence"`
	NoveltyAssessment string          `json:"novelty_assessment"`
	Attribution       string          `json:"attribution"`
	// ToolsUsed names each known tool called earlier in the run once, in
	// first-use order. Repeated calls appear only in ToolCallLog.
	ToolsUsed []string `json:"tools_used"`
}

// ToolCallLogEntry is one append-only audit record of a tool invocation.
type ToolCallLogEntry struct {
	Tool          string         `json:"tool"`
	Args          map[string]any `json:"args"`
	ResultSummary string         `json:"result_summary"`
}

// SelectionResult is the output of a completed scoring run. ToolCallLog
// holds every tool call in order, repeats included; each selection's
// ToolsUsed is the de-duplicated first-use list of the same calls.
type SelectionResult struct {
	RunID            string             `json:"run_id"`
	Selections       []SignalSelection  `json:"selections"`
	ToolCallLog      []ToolCallLogEntry `json:"tool_call_log"`
	ModelUsed        string             `json:"model_used"`
	PromptTokens     int                `json:"prompt_tokens"`
	CompletionTokens int                `json:"completion_tokens"`
	Rounds           int                `json:"rounds"`
}

// AgentScoringConfig holds the immutable per-run agent settings.
type AgentScoringConfig struct {
	Model             string  `json:"model"`
	Temperature       float64 `json:"temperature"`
	MaxToolRounds     int     `json:"max_tool_rounds"`
	TargetSelections  int     `json:"target_selections"`
	CandidatePoolSize int     `json:"candidate_pool_size"`
	MaxTokens         int     `json:"max_tokens"`
	MeetingSlotCap    int     `json:"meeting_slot_cap"`
}

// DefaultAgentScoringConfig returns the standard per-run settings.
func DefaultAgentScoringConfig() AgentScoringConfig {
	return AgentScoringConfig{
		Temperature:       0.3,
		MaxToolRounds:     10,
		TargetSelections:  5,
		CandidatePoolSize: 40,
		MaxTokens:         4096,
		MeetingSlotCap:    3,
	}
}

// Validate checks that the configuration is usable for a run.
func (c AgentScoringConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0,2], got %v", c.Temperature)
	}
	if c.MaxToolRounds < 1 {
		return fmt.Errorf("max tool rounds must be >= 1, got %d", c.MaxToolRounds)
	}
	if c.TargetSelections < 1 {
		return fmt.Errorf("target selections must be >= 1, got %d", c.TargetSelections)
	}
	if c.CandidatePoolSize < 1 {
		return fmt.Errorf("candidate pool size must be >= 1, got %d", c.CandidatePoolSize)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be >= 1, got %d", c.MaxTokens)
	}
	return nil
}

// StoredSignal is an ingested item waiting to be offered as a candidate.
type StoredSignal struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	SourceURL   string     `json:"source_url"`
	SourceLabel string     `json:"source_label"`
	Layer       string     `json:"layer"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	IngestedAt  time.Time  `json:"ingested_at"`
}

// Candidate converts a stored signal into a scoring candidate.
func (s StoredSignal) Candidate() CandidateSignal {
	return CandidateSignal{
		Title:       s.Title,
		Summary:     s.Summary,
		SourceURL:   s.SourceURL,
		SourceLabel: s.SourceLabel,
		Layer:       s.Layer,
		PublishedAt: s.PublishedAt,
	}
}

// ProvenanceKind describes why a signal surfaced for a user.
type ProvenanceKind string

const (
	ProvenancePeerTracked    ProvenanceKind = "peer_tracked"
	ProvenanceUserForwarded  ProvenanceKind = "user_forwarded"
	ProvenanceTopicQuery     ProvenanceKind = "topic_query"
	ProvenanceMeetingRelated ProvenanceKind = "meeting_related"
	ProvenanceFeed           ProvenanceKind = "feed"
)

// SignalProvenance records why a signal with a given URL or title surfaced.
type SignalProvenance struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	SourceURL string         `json:"source_url"`
	Title     string         `json:"title"`
	Kind      ProvenanceKind `json:"kind"`
	Detail    string         `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// IngestionQuery is one polled source with its own backoff state.
type IngestionQuery struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Kind          string     `json:"kind"`
	URL           string     `json:"url"`
	Label         string     `json:"label"`
	Layer         string     `json:"layer"`
	NextPollAt    time.Time  `json:"next_poll_at"`
	ErrorCount    int        `json:"error_count"`
	LastError     string     `json:"last_error,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
}
