package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/internal/universe"
	"github.com/scrypster/briefing/pkg/types"
)

// DefaultLookback bounds how far back signals are read when a user was
// never briefed or was briefed long ago.
const DefaultLookback = 48 * time.Hour

// signalFetchLimit caps signals read per run, before universe filtering.
const signalFetchLimit = 500

// ErrNoCandidates means nothing reached the agent for a user.
var ErrNoCandidates = errors.New("no candidate signals")

// PipelineStore is the slice of storage the pipeline reads and writes.
type PipelineStore interface {
	storage.ProfileStore
	storage.UniverseStore
	storage.SignalStore
	storage.BriefingStore
}

// Selector is the agent contract the pipeline depends on.
type Selector interface {
	Run(ctx context.Context, userID string, candidates []types.CandidateSignal, cfg types.AgentScoringConfig) (*types.SelectionResult, error)
}

// PipelineConfig holds the per-pipeline settings.
type PipelineConfig struct {
	Scoring types.AgentScoringConfig

	// EnforceMeetingCap drops meeting_prep selections past
	// Scoring.MeetingSlotCap. Off by default; the cap is otherwise only a
	// prompt instruction.
	EnforceMeetingCap bool

	// Concurrency bounds RunAll. Values below 1 mean 1.
	Concurrency int

	// Lookback defaults to DefaultLookback.
	Lookback time.Duration

	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

// BriefingOutput is what the composer consumes: the surviving selections
// and the candidate pool their indices refer to.
type BriefingOutput struct {
	UserID     string
	Briefing   *types.BriefingRecord
	Selections []types.SignalSelection
	Candidates []types.CandidateSignal
	Result     *types.SelectionResult

	// Filtered counts candidates the content universe rejected.
	Filtered int

	// Discarded counts selections dropped for an out-of-range index or the
	// meeting cap.
	Discarded int
}

// RunReport is one user's outcome from RunAll.
type RunReport struct {
	UserID string
	Output *BriefingOutput
	Err    error
}

// Pipeline turns stored signals into persisted briefings.
type Pipeline struct {
	store    PipelineStore
	selector Selector
	cfg      PipelineConfig
	logger   *zap.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(store PipelineStore, selector Selector, cfg PipelineConfig, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Pipeline{store: store, selector: selector, cfg: cfg, logger: logger}
}

// RunForUser builds and persists one briefing.
func (p *Pipeline) RunForUser(ctx context.Context, userID string) (*BriefingOutput, error) {
	logger := p.logger.With(zap.String("user_id", userID))
	now := p.cfg.Now()

	if _, err := p.store.GetProfile(ctx, userID); err != nil {
		return nil, fmt.Errorf("load profile for %s: %w", userID, err)
	}

	u, err := p.store.GetUniverse(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("load universe for %s: %w", userID, err)
		}
		u = nil
	}

	since, err := p.since(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	stored, err := p.store.ListSignals(ctx, userID, since, signalFetchLimit)
	if err != nil {
		return nil, fmt.Errorf("list signals for %s: %w", userID, err)
	}

	raw := make([]types.CandidateSignal, len(stored))
	for i, s := range stored {
		raw[i] = s.Candidate()
	}
	candidates, filtered := universe.Filter(raw, u)
	if size := p.cfg.Scoring.CandidatePoolSize; size > 0 && len(candidates) > size {
		candidates = candidates[:size]
	}

	logger.Info("candidate pool built",
		zap.Time("since", since),
		zap.Int("stored", len(stored)),
		zap.Int("filtered", filtered),
		zap.Int("candidates", len(candidates)))
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	result, err := p.selector.Run(ctx, userID, candidates, p.cfg.Scoring)
	if err != nil {
		return nil, err
	}

	selections, outOfRange := ValidSelections(result.Selections, len(candidates))
	if outOfRange > 0 {
		logger.Warn("discarded out-of-range selections", zap.Int("count", outOfRange), zap.String("run_id", result.RunID))
	}
	overCap := 0
	if p.cfg.EnforceMeetingCap {
		selections, overCap = EnforceMeetingCap(selections, p.cfg.Scoring.MeetingSlotCap)
		if overCap > 0 {
			logger.Info("meeting cap dropped selections", zap.Int("count", overCap), zap.String("run_id", result.RunID))
		}
	}
	if len(selections) == 0 {
		return nil, fmt.Errorf("%w: every selection was discarded", ErrNoSelection)
	}

	record := &types.BriefingRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		ModelUsed: result.ModelUsed,
		Items:     make([]types.BriefingItem, 0, len(selections)),
	}
	for _, s := range selections {
		c := candidates[s.SignalIndex]
		record.Items = append(record.Items, types.BriefingItem{
			Title:       c.Title,
			Summary:     c.Summary,
			SourceURL:   c.SourceURL,
			Reason:      s.Reason,
			ReasonLabel: s.ReasonLabel,
		})
	}
	if err := p.store.SaveBriefing(ctx, record); err != nil {
		return nil, fmt.Errorf("save briefing for %s: %w", userID, err)
	}

	logger.Info("briefing saved",
		zap.String("briefing_id", record.ID),
		zap.String("run_id", result.RunID),
		zap.Int("items", len(record.Items)))

	return &BriefingOutput{
		UserID:     userID,
		Briefing:   record,
		Selections: selections,
		Candidates: candidates,
		Result:     result,
		Filtered:   filtered,
		Discarded:  outOfRange + overCap,
	}, nil
}

// since returns the later of the last briefing time and now-Lookback.
func (p *Pipeline) since(ctx context.Context, userID string, now time.Time) (time.Time, error) {
	since := now.Add(-p.cfg.Lookback)
	last, err := p.store.LatestBriefing(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return since, nil
	case err != nil:
		return time.Time{}, fmt.Errorf("latest briefing for %s: %w", userID, err)
	}
	if last.CreatedAt.After(since) {
		since = last.CreatedAt
	}
	return since, nil
}

// RunAll runs every user with a profile, at most Concurrency at a time.
// Each user's outcome is reported separately; one failure never cancels
// another run.
func (p *Pipeline) RunAll(ctx context.Context) ([]RunReport, error) {
	userIDs, err := p.store.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	reports := make([]RunReport, len(userIDs))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, userID := range userIDs {
		g.Go(func() error {
			out, err := p.RunForUser(ctx, userID)
			reports[i] = RunReport{UserID: userID, Output: out, Err: err}
			if err != nil && !errors.Is(err, ErrNoCandidates) {
				p.logger.Warn("no briefing produced", zap.String("user_id", userID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return reports, nil
}

// ValidSelections keeps selections whose index falls inside a pool of
// size n, and reports how many were dropped.
func ValidSelections(selections []types.SignalSelection, n int) ([]types.SignalSelection, int) {
	out := make([]types.SignalSelection, 0, len(selections))
	for _, s := range selections {
		if s.SignalIndex >= 0 && s.SignalIndex < n {
			out = append(out, s)
		}
	}
	return out, len(selections) - len(out)
}

// EnforceMeetingCap keeps the first limit meeting_prep selections in
// order and drops the rest. A limit below 1 disables the cap.
func EnforceMeetingCap(selections []types.SignalSelection, limit int) ([]types.SignalSelection, int) {
	if limit < 1 {
		return selections, 0
	}
	out := make([]types.SignalSelection, 0, len(selections))
	meetings := 0
	for _, s := range selections {
		if s.Reason == types.ReasonMeetingPrep {
			meetings++
			if meetings > limit {
				continue
			}
		}
		out = append(out, s)
	}
	return out, len(selections) - len(out)
}
