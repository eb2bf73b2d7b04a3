// Package engine drives selection runs: the bounded tool loop that turns a
// candidate pool into a justified selection, and the pipeline that feeds it
// and persists what it picks.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrypster/briefing/internal/llm"
	"github.com/scrypster/briefing/internal/metrics"
	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/internal/tools"
	"github.com/scrypster/briefing/pkg/types"
)

const (
	// ToolResultLimit caps a tool result fed back into the conversation.
	ToolResultLimit = 6000

	// AuditSummaryLimit caps a tool result stored in the audit log.
	AuditSummaryLimit = 300
)

var (
	// ErrRunFailed means the reasoning model could not be reached. The run
	// is abandoned without retry.
	ErrRunFailed = errors.New("agent run failed")

	// ErrNoSelection means the model never produced a usable
	// submit_selections call, forced finalization included.
	ErrNoSelection = errors.New("agent produced no selection")
)

// Options tunes an Agent.
type Options struct {
	// CallTimeout bounds each model call. Zero disables the timeout.
	CallTimeout time.Duration

	// Now returns the run clock handed to tools. Defaults to time.Now in UTC.
	Now func() time.Time
}

// DefaultOptions returns the standard agent options.
func DefaultOptions() Options {
	return Options{CallTimeout: 60 * time.Second}
}

// Agent runs the selection loop. It holds no per-run state and is safe to
// share between concurrent runs.
type Agent struct {
	chat     llm.ChatModel
	executor *tools.Executor
	profiles storage.ProfileStore
	metrics  metrics.Recorder
	logger   *zap.Logger
	opts     Options
}

// NewAgent creates an agent. profiles may be nil, in which case the system
// prompt carries no user profile.
func NewAgent(chat llm.ChatModel, executor *tools.Executor, profiles storage.ProfileStore, recorder metrics.Recorder, logger *zap.Logger, opts Options) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Agent{
		chat:     chat,
		executor: executor,
		profiles: profiles,
		metrics:  metrics.OrNoop(recorder),
		logger:   logger,
		opts:     opts,
	}
}

// run is the state owned by a single Run call.
type run struct {
	ctx      context.Context
	rc       *tools.RunContext
	cfg      types.AgentScoringConfig
	messages []llm.Message
	result   *types.SelectionResult
	used     []string
	seen     map[string]bool
	logger   *zap.Logger
}

// Run selects signals from candidates for userID.
//
// A nil result means no briefing today. The error then says why:
// ErrRunFailed for a model transport failure, ErrNoSelection when even the
// forced finalization call produced nothing usable. Selection indices are
// not range-checked here; callers discard out-of-range ones.
func (a *Agent) Run(ctx context.Context, userID string, candidates []types.CandidateSignal, cfg types.AgentScoringConfig) (*types.SelectionResult, error) {
	if cfg.Model == "" {
		cfg.Model = a.chat.GetModel()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring config: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: empty candidate pool", ErrNoSelection)
	}

	runID := uuid.New().String()
	r := &run{
		ctx: ctx,
		rc: &tools.RunContext{
			RunID:      runID,
			UserID:     userID,
			Candidates: candidates,
			Now:        a.opts.Now(),
		},
		cfg: cfg,
		messages: []llm.Message{
			{Role: llm.RoleSystem, Content: SystemPrompt(a.profile(ctx, userID), cfg)},
			{Role: llm.RoleUser, Content: CandidatesPrompt(candidates)},
		},
		result: &types.SelectionResult{RunID: runID, ModelUsed: cfg.Model},
		seen:   map[string]bool{},
		logger: a.logger.With(zap.String("user_id", userID), zap.String("run_id", runID)),
	}

	emitToContext(ctx, EventRunStarted(runID, userID, len(candidates)))
	r.logger.Info("agent run started",
		zap.Int("candidates", len(candidates)),
		zap.Int("max_tool_rounds", cfg.MaxToolRounds),
		zap.String("model", cfg.Model))

	for round := 1; round <= cfg.MaxToolRounds; round++ {
		resp, err := a.call(r, round)
		if err != nil {
			return a.fail(r, round, err)
		}

		call, ok := llm.ParseToolCall(resp.Content)
		if !ok {
			emitToContext(ctx, EventFreeText(round))
			r.logger.Debug("reply had no tool call", zap.Int("round", round))
			r.messages = append(r.messages, llm.Message{Role: llm.RoleUser, Content: freeTextPrompt()})
			continue
		}

		if call.Tool == tools.SubmitSelections {
			if selections, ok := a.submit(r, round, call); ok {
				return a.complete(r, round, selections)
			}
			continue
		}

		a.executeTool(r, round, call)
	}

	forced := cfg.MaxToolRounds + 1
	emitToContext(ctx, EventForcedFinalization(forced))
	r.logger.Info("round budget exhausted, forcing finalization", zap.Int("round", forced))
	r.messages = append(r.messages, llm.Message{Role: llm.RoleUser, Content: forceFinalizePrompt(cfg.TargetSelections)})

	resp, err := a.call(r, forced)
	if err != nil {
		return a.fail(r, forced, err)
	}
	if call, ok := llm.ParseToolCall(resp.Content); ok && call.Tool == tools.SubmitSelections {
		if selections, ok := a.submit(r, forced, call); ok {
			return a.complete(r, forced, selections)
		}
	}

	a.metrics.IncRunOutcome(metrics.OutcomeNoSelection)
	a.metrics.ObserveAgentRounds(forced)
	emitToContext(ctx, EventRunFinished(forced, metrics.OutcomeNoSelection, 0))
	r.logger.Warn("agent produced no selection",
		zap.Int("rounds", forced),
		zap.Int("prompt_tokens", r.result.PromptTokens),
		zap.Int("completion_tokens", r.result.CompletionTokens))
	return nil, fmt.Errorf("%w after %d calls", ErrNoSelection, forced)
}

func (a *Agent) profile(ctx context.Context, userID string) *types.UserProfile {
	if a.profiles == nil {
		return nil
	}
	p, err := a.profiles.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			a.logger.Warn("failed to load profile for prompt", zap.String("user_id", userID), zap.Error(err))
		}
		return nil
	}
	return p
}

// call sends the conversation, accounts tokens and appends the reply.
func (a *Agent) call(r *run, round int) (*llm.ChatResponse, error) {
	ctx := r.ctx
	if a.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.CallTimeout)
		defer cancel()
	}

	resp, err := a.chat.Chat(ctx, r.messages, llm.ChatOptions{
		Model:       r.cfg.Model,
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	r.result.Rounds = round
	r.result.PromptTokens += resp.PromptTokens
	r.result.CompletionTokens += resp.CompletionTokens
	if resp.Model != "" {
		r.result.ModelUsed = resp.Model
	}
	a.metrics.AddTokens("prompt", resp.PromptTokens)
	a.metrics.AddTokens("completion", resp.CompletionTokens)
	emitToContext(r.ctx, EventModelCalled(round, resp.PromptTokens, resp.CompletionTokens))

	r.messages = append(r.messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
	return resp, nil
}

// submit parses a submit_selections call. An unusable payload gets a
// corrective turn and reports false.
func (a *Agent) submit(r *run, round int, call *llm.ToolCall) ([]types.SignalSelection, bool) {
	selections, err := llm.ParseSelections(call.Args)
	if err != nil {
		r.result.ToolCallLog = append(r.result.ToolCallLog, types.ToolCallLogEntry{
			Tool:          call.Tool,
			Args:          call.Args,
			ResultSummary: truncate("rejected: "+err.Error(), AuditSummaryLimit),
		})
		emitToContext(r.ctx, EventSubmitRejected(round, err.Error()))
		r.logger.Debug("submit rejected", zap.Int("round", round), zap.Error(err))
		r.messages = append(r.messages, llm.Message{Role: llm.RoleUser, Content: rejectedSubmitPrompt(err)})
		return nil, false
	}

	r.result.ToolCallLog = append(r.result.ToolCallLog, types.ToolCallLogEntry{
		Tool:          call.Tool,
		Args:          call.Args,
		ResultSummary: fmt.Sprintf("accepted %d selections", len(selections)),
	})
	return selections, true
}

func (a *Agent) executeTool(r *run, round int, call *llm.ToolCall) {
	payload := a.executor.Execute(r.ctx, call.Tool, call.Args, r.rc)

	body, err := json.Marshal(payload)
	if err != nil {
		body, _ = json.Marshal(tools.ErrorResult{Error: fmt.Sprintf("%s result could not be encoded", call.Tool)})
	}
	text := string(body)

	summary := truncate(text, AuditSummaryLimit)
	r.result.ToolCallLog = append(r.result.ToolCallLog, types.ToolCallLogEntry{
		Tool:          call.Tool,
		Args:          call.Args,
		ResultSummary: summary,
	})
	if a.executor.Has(call.Tool) && !r.seen[call.Tool] {
		r.seen[call.Tool] = true
		r.used = append(r.used, call.Tool)
	}

	emitToContext(r.ctx, EventToolExecuted(round, call.Tool, summary))
	r.logger.Debug("tool executed", zap.Int("round", round), zap.String("tool", call.Tool), zap.Int("bytes", len(text)))
	r.messages = append(r.messages, llm.Message{
		Role:    llm.RoleUser,
		Content: toolResultPrompt(call.Tool, truncate(text, ToolResultLimit)),
	})
}

func (a *Agent) complete(r *run, round int, selections []types.SignalSelection) (*types.SelectionResult, error) {
	for i := range selections {
		selections[i].ToolsUsed = append([]string(nil), r.used...)
	}
	r.result.Selections = selections

	a.metrics.IncRunOutcome(metrics.OutcomeCompleted)
	a.metrics.ObserveAgentRounds(round)
	emitToContext(r.ctx, EventRunFinished(round, metrics.OutcomeCompleted, len(selections)))
	r.logger.Info("agent run completed",
		zap.Int("rounds", round),
		zap.Int("selections", len(selections)),
		zap.Strings("tools_used", r.used),
		zap.Int("prompt_tokens", r.result.PromptTokens),
		zap.Int("completion_tokens", r.result.CompletionTokens))
	return r.result, nil
}

func (a *Agent) fail(r *run, round int, err error) (*types.SelectionResult, error) {
	a.metrics.IncRunOutcome(metrics.OutcomeFailed)
	a.metrics.ObserveAgentRounds(round)
	emitToContext(r.ctx, EventRunFinished(round, metrics.OutcomeFailed, 0))
	r.logger.Error("model call failed, abandoning run", zap.Int("round", round), zap.Error(err))
	return nil, fmt.Errorf("%w: round %d: %w", ErrRunFailed, round, err)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
