package engine

import (
	"context"
	"time"
)

// TraceEventKind classifies each trace event by type.
type TraceEventKind string

const (
	// KindRunStarted is emitted once before the first model call.
	KindRunStarted TraceEventKind = "run_started"

	// KindModelCalled is emitted after every successful model call.
	KindModelCalled TraceEventKind = "model_called"

	// KindToolExecuted is emitted once per executed tool.
	KindToolExecuted TraceEventKind = "tool_executed"

	// KindFreeText is emitted when a reply held no parseable tool call.
	KindFreeText TraceEventKind = "free_text"

	// KindSubmitRejected is emitted for an unusable submit_selections payload.
	KindSubmitRejected TraceEventKind = "submit_rejected"

	// KindForcedFinalization is emitted when the round budget runs out.
	KindForcedFinalization TraceEventKind = "forced_finalization"

	// KindRunFinished is emitted once with the run outcome.
	KindRunFinished TraceEventKind = "run_finished"
)

// TraceEvent is a single structured event emitted during an agent run.
type TraceEvent struct {
	Kind TraceEventKind `json:"kind"`
	At   time.Time      `json:"at"`

	// Round is the 1-based model round; the forced finalization call is
	// maxToolRounds+1.
	Round int `json:"round,omitempty"`

	RunID  string `json:"run_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Tool   string `json:"tool,omitempty"`

	// Count is the candidate count for run_started and the selection count
	// for run_finished.
	Count int `json:"count,omitempty"`

	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`

	// Detail carries a short summary: a tool result, a parse error or the
	// final outcome.
	Detail string `json:"detail,omitempty"`
}

func newTraceEvent(kind TraceEventKind, round int) TraceEvent {
	return TraceEvent{Kind: kind, At: time.Now(), Round: round}
}

// EventRunStarted creates a run_started trace event.
func EventRunStarted(runID, userID string, candidates int) TraceEvent {
	e := newTraceEvent(KindRunStarted, 0)
	e.RunID = runID
	e.UserID = userID
	e.Count = candidates
	return e
}

// EventModelCalled creates a model_called trace event.
func EventModelCalled(round, promptTokens, completionTokens int) TraceEvent {
	e := newTraceEvent(KindModelCalled, round)
	e.PromptTokens = promptTokens
	e.CompletionTokens = completionTokens
	return e
}

// EventToolExecuted creates a tool_executed trace event.
func EventToolExecuted(round int, tool, summary string) TraceEvent {
	e := newTraceEvent(KindToolExecuted, round)
	e.Tool = tool
	e.Detail = summary
	return e
}

// EventFreeText creates a free_text trace event.
func EventFreeText(round int) TraceEvent {
	return newTraceEvent(KindFreeText, round)
}

// EventSubmitRejected creates a submit_rejected trace event.
func EventSubmitRejected(round int, reason string) TraceEvent {
	e := newTraceEvent(KindSubmitRejected, round)
	e.Tool = "submit_selections"
	e.Detail = reason
	return e
}

// EventForcedFinalization creates a forced_finalization trace event.
func EventForcedFinalization(round int) TraceEvent {
	return newTraceEvent(KindForcedFinalization, round)
}

// EventRunFinished creates a run_finished trace event.
func EventRunFinished(round int, outcome string, selections int) TraceEvent {
	e := newTraceEvent(KindRunFinished, round)
	e.Detail = outcome
	e.Count = selections
	return e
}

type contextKey string

const traceKey contextKey = "agent_trace"

// TraceCollector accumulates TraceEvents for a single agent run.
// It is owned by one run and is not safe for concurrent use.
type TraceCollector struct {
	events    []TraceEvent
	startedAt time.Time
}

// NewTraceCollector returns a fresh collector.
func NewTraceCollector() *TraceCollector {
	return &TraceCollector{startedAt: time.Now()}
}

// Emit appends an event to the collector.
func (tc *TraceCollector) Emit(e TraceEvent) {
	tc.events = append(tc.events, e)
}

// Events returns the collected events in emission order.
func (tc *TraceCollector) Events() []TraceEvent {
	return tc.events
}

// ElapsedMS returns the elapsed time since the collector was created, in milliseconds.
func (tc *TraceCollector) ElapsedMS() int64 {
	return time.Since(tc.startedAt).Milliseconds()
}

// WithTraceCollector stores a collector in the context.
func WithTraceCollector(ctx context.Context, tc *TraceCollector) context.Context {
	return context.WithValue(ctx, traceKey, tc)
}

// TraceCollectorFromContext retrieves the collector from the context.
// Returns (nil, false) if none is present.
func TraceCollectorFromContext(ctx context.Context) (*TraceCollector, bool) {
	tc, ok := ctx.Value(traceKey).(*TraceCollector)
	return tc, ok
}

// emitToContext emits an event only when a collector is present.
func emitToContext(ctx context.Context, e TraceEvent) {
	if tc, ok := TraceCollectorFromContext(ctx); ok {
		tc.Emit(e)
	}
}

// RunSummary condenses a trace for the CLI's --trace output.
type RunSummary struct {
	RunID            string         `json:"run_id"`
	UserID           string         `json:"user_id"`
	Candidates       int            `json:"candidates"`
	Rounds           int            `json:"rounds"`
	ToolCalls        map[string]int `json:"tool_calls"`
	FreeTextReplies  int            `json:"free_text_replies"`
	RejectedSubmits  int            `json:"rejected_submits"`
	Forced           bool           `json:"forced_finalization"`
	Outcome          string         `json:"outcome"`
	Selections       int            `json:"selections"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	TimingMS         int64          `json:"timing_ms"`
}

// BuildRunSummary folds trace events into a RunSummary.
func BuildRunSummary(events []TraceEvent, elapsedMS int64) *RunSummary {
	s := &RunSummary{ToolCalls: map[string]int{}, TimingMS: elapsedMS}
	for _, e := range events {
		if e.Round > s.Rounds {
			s.Rounds = e.Round
		}
		switch e.Kind {
		case KindRunStarted:
			s.RunID = e.RunID
			s.UserID = e.UserID
			s.Candidates = e.Count
		case KindModelCalled:
			s.PromptTokens += e.PromptTokens
			s.CompletionTokens += e.CompletionTokens
		case KindToolExecuted:
			s.ToolCalls[e.Tool]++
		case KindFreeText:
			s.FreeTextReplies++
		case KindSubmitRejected:
			s.RejectedSubmits++
		case KindForcedFinalization:
			s.Forced = true
		case KindRunFinished:
			s.Outcome = e.Detail
			s.Selections = e.Count
		}
	}
	return s
}
