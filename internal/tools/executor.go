// Package tools implements the closed set of tools the selection agent may
// call. Every tool is read-only and returns a JSON-serializable value; a
// failing tool yields an ErrorResult instead of an error so one bad call
// never aborts a run.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/briefing/internal/knowledge"
	"github.com/scrypster/briefing/internal/llm"
	"github.com/scrypster/briefing/internal/metrics"
	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/pkg/types"
)

// Tool names.
const (
	CheckKnowledgeGraph      = "check_knowledge_graph"
	CheckFeedbackHistory     = "check_feedback_history"
	CompareWithPeers         = "compare_with_peers"
	GetSignalProvenance      = "get_signal_provenance"
	AssessFreshness          = "assess_freshness"
	WebSearch                = "web_search"
	QueryGoogleTrends        = "query_google_trends"
	CheckTodayMeetings       = "check_today_meetings"
	ResearchMeetingAttendees = "research_meeting_attendees"
	SearchBriefingHistory    = "search_briefing_history"
	CrossReferenceSignals    = "cross_reference_signals"
	CheckExpertiseGaps       = "check_expertise_gaps"
	SubmitSelections         = "submit_selections"
)

// Names lists every tool in prompt order. SubmitSelections is last.
var Names = []string{
	CheckKnowledgeGraph,
	CheckFeedbackHistory,
	CompareWithPeers,
	GetSignalProvenance,
	AssessFreshness,
	WebSearch,
	QueryGoogleTrends,
	CheckTodayMeetings,
	ResearchMeetingAttendees,
	SearchBriefingHistory,
	CrossReferenceSignals,
	CheckExpertiseGaps,
	SubmitSelections,
}

// ErrProviderNotConfigured is returned by tools whose external provider
// has no credentials.
var ErrProviderNotConfigured = errors.New("provider not configured")

// ErrorResult is the payload a failed tool returns to the model.
type ErrorResult struct {
	Error    string   `json:"error"`
	Query    string   `json:"query,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// RunContext is the per-run state a tool may read.
type RunContext struct {
	RunID      string
	UserID     string
	Candidates []types.CandidateSignal
	Now        time.Time
}

func (rc *RunContext) now() time.Time {
	if rc.Now.IsZero() {
		return time.Now().UTC()
	}
	return rc.Now
}

// candidate returns the candidate at idx or an index error.
func (rc *RunContext) candidate(idx int) (types.CandidateSignal, error) {
	if idx < 0 || idx >= len(rc.Candidates) {
		return types.CandidateSignal{}, fmt.Errorf("signal_index %d out of range (pool has %d signals)", idx, len(rc.Candidates))
	}
	return rc.Candidates[idx], nil
}

// KnowledgeLookup is the read side of the knowledge model.
type KnowledgeLookup interface {
	Lookup(ctx context.Context, userID, query string) (*knowledge.LookupResult, error)
}

// Deps are the collaborators the tools read from. Search and Trends may be
// nil; their tools then report ErrProviderNotConfigured.
type Deps struct {
	Knowledge  KnowledgeLookup
	Entities   storage.KnowledgeStore
	Profiles   storage.ProfileStore
	Feedback   storage.FeedbackStore
	Peers      storage.PeerStore
	Provenance storage.ProvenanceStore
	Meetings   storage.MeetingStore
	Briefings  storage.BriefingStore
	Search     SearchProvider
	Trends     TrendsProvider
}

// DepsFromStore fills every storage dependency from one store.
func DepsFromStore(store storage.Store, model KnowledgeLookup) Deps {
	return Deps{
		Knowledge:  model,
		Entities:   store,
		Profiles:   store,
		Feedback:   store,
		Peers:      store,
		Provenance: store,
		Meetings:   store,
		Briefings:  store,
	}
}

type handlerFunc func(ctx context.Context, rc *RunContext, args llm.Args) (any, error)

// Executor dispatches tool calls by name.
type Executor struct {
	deps     Deps
	handlers map[string]handlerFunc
	metrics  metrics.Recorder
	logger   *zap.Logger
}

// NewExecutor creates an executor. A nil recorder or logger is replaced by
// a no-op.
func NewExecutor(deps Deps, recorder metrics.Recorder, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		deps:    deps,
		metrics: metrics.OrNoop(recorder),
		logger:  logger,
	}
	e.handlers = map[string]handlerFunc{
		CheckKnowledgeGraph:      e.checkKnowledgeGraph,
		CheckFeedbackHistory:     e.checkFeedbackHistory,
		CompareWithPeers:         e.compareWithPeers,
		GetSignalProvenance:      e.getSignalProvenance,
		AssessFreshness:          e.assessFreshness,
		WebSearch:                e.webSearch,
		QueryGoogleTrends:        e.queryGoogleTrends,
		CheckTodayMeetings:       e.checkTodayMeetings,
		ResearchMeetingAttendees: e.researchMeetingAttendees,
		SearchBriefingHistory:    e.searchBriefingHistory,
		CrossReferenceSignals:    e.crossReferenceSignals,
		CheckExpertiseGaps:       e.checkExpertiseGaps,
		SubmitSelections:         submitSelections,
	}
	return e
}

// Registered returns the registered tool names, sorted.
func (e *Executor) Registered() []string {
	names := make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is a registered tool.
func (e *Executor) Has(name string) bool {
	_, ok := e.handlers[name]
	return ok
}

// Execute runs one tool and always returns a JSON-serializable value.
// Unknown tools, handler errors and handler panics become an ErrorResult.
func (e *Executor) Execute(ctx context.Context, name string, args llm.Args, rc *RunContext) (result any) {
	handler, ok := e.handlers[name]
	if !ok {
		e.metrics.IncToolTotal("unknown", false)
		return ErrorResult{Error: "Unknown tool: " + name}
	}
	if args == nil {
		args = llm.Args{}
	}

	done := metrics.TimeTool(e.metrics, name)
	success := false
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked",
				zap.String("tool", name),
				zap.String("run_id", rc.RunID),
				zap.Any("panic", r))
			result = ErrorResult{Error: fmt.Sprintf("%s failed: internal error", name)}
			success = false
		}
		done(success)
	}()

	out, err := handler(ctx, rc, args)
	if err != nil {
		e.logger.Warn("tool failed",
			zap.String("tool", name),
			zap.String("user_id", rc.UserID),
			zap.String("run_id", rc.RunID),
			zap.Error(err))
		return ErrorResult{Error: err.Error()}
	}
	if _, failed := out.(ErrorResult); !failed {
		success = true
	}
	return out
}

func submitSelections(context.Context, *RunContext, llm.Args) (any, error) {
	return ErrorResult{Error: "submit_selections is handled by the agent; respond with it as your final call"}, nil
}
