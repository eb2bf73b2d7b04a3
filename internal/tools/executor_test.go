package tools

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/briefing/internal/knowledge"
	"github.com/scrypster/briefing/internal/llm"
	"github.com/scrypster/briefing/internal/storage/sqlite"
	"github.com/scrypster/briefing/pkg/types"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	err     error
}

func (f *fakeSearch) Search(_ context.Context, query string, maxResults int) ([]SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return []SearchResult{{Title: "About " + query, URL: "https://example.com/" + query}}, nil
}

func (f *fakeSearch) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type fakeTrends struct {
	series map[string][]float64
	asked  []string
}

func (f *fakeTrends) Interest(_ context.Context, keywords []string) (map[string][]float64, error) {
	f.asked = keywords
	return f.series, nil
}

type countingRecorder struct {
	mu     sync.Mutex
	totals map[string]int
	failed map[string]int
}

func (r *countingRecorder) IncToolTotal(tool string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals[tool]++
	if !success {
		r.failed[tool]++
	}
}
func (r *countingRecorder) ObserveToolSeconds(string, bool, float64) {}
func (r *countingRecorder) ObserveAgentRounds(int)                   {}
func (r *countingRecorder) IncRunOutcome(string)                     {}
func (r *countingRecorder) AddTokens(string, int)                    {}
func (r *countingRecorder) IncPollTotal(bool)                        {}

type fixture struct {
	store    *sqlite.Store
	model    *knowledge.Model
	search   *fakeSearch
	trends   *fakeTrends
	recorder *countingRecorder
	exec     *Executor
	rc       *RunContext
}

func newFixture(t *testing.T, candidates ...types.CandidateSignal) *fixture {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "tools.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store:    store,
		model:    knowledge.NewModel(store, nil, nil),
		search:   &fakeSearch{},
		trends:   &fakeTrends{},
		recorder: &countingRecorder{totals: map[string]int{}, failed: map[string]int{}},
		rc:       &RunContext{RunID: "run-1", UserID: "u1", Candidates: candidates, Now: testNow},
	}
	deps := DepsFromStore(store, f.model)
	deps.Search = f.search
	deps.Trends = f.trends
	f.exec = NewExecutor(deps, f.recorder, nil)

	require.NoError(t, store.SaveProfile(context.Background(), &types.UserProfile{
		UserID: "u1", Name: "Sam", Role: "Head of Payments", Company: "Acme Bank",
		EmailDomain: "acme.example", ImpressList: []string{"Dana Whitfield"},
	}))
	return f
}

func (f *fixture) run(name string, args llm.Args) any {
	return f.exec.Execute(context.Background(), name, args, f.rc)
}

func TestExecute_UnknownTool(t *testing.T) {
	f := newFixture(t)
	got := f.run("nonexistent_tool", llm.Args{})
	if diff := cmp.Diff(ErrorResult{Error: "Unknown tool: nonexistent_tool"}, got); diff != "" {
		t.Errorf("unknown tool result mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, f.recorder.failed["unknown"])
}

func TestExecute_AllToolsRegistered(t *testing.T) {
	f := newFixture(t)
	assert.ElementsMatch(t, Names, f.exec.Registered())
	assert.Len(t, Names, 13)
	assert.Equal(t, SubmitSelections, Names[len(Names)-1])
}

func TestExecute_SubmitSelectionsDirectly(t *testing.T) {
	f := newFixture(t)
	got, ok := f.run(SubmitSelections, llm.Args{"selections": []any{}}).(ErrorResult)
	require.True(t, ok)
	assert.Contains(t, got.Error, "handled by the agent")
}

func TestExecute_HandlerPanicBecomesError(t *testing.T) {
	f := newFixture(t)
	f.exec.handlers["boom"] = func(context.Context, *RunContext, llm.Args) (any, error) {
		panic("kaboom")
	}
	got, ok := f.run("boom", nil).(ErrorResult)
	require.True(t, ok)
	assert.Contains(t, got.Error, "boom failed")
	assert.Equal(t, 1, f.recorder.failed["boom"])
}

func TestExecute_HandlerErrorIsPayload(t *testing.T) {
	f := newFixture(t)
	got := f.run(GetSignalProvenance, llm.Args{"signal_index": float64(7)})
	res, ok := got.(ErrorResult)
	require.True(t, ok)
	assert.Contains(t, res.Error, "out of range")
	assert.Equal(t, 1, f.recorder.totals[GetSignalProvenance])
	assert.Equal(t, 1, f.recorder.failed[GetSignalProvenance])
}

func TestCheckKnowledgeGraph(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.model.AddEntities(ctx, "u1", []knowledge.EntityInput{
		{Name: "FedNow", EntityType: types.EntityTypeProduct, Description: "US instant payments", Confidence: 0.9},
	})
	require.NoError(t, err)

	got := f.run(CheckKnowledgeGraph, llm.Args{"query": "fednow"})
	want := KnowledgeResult{
		Query:     "fednow",
		MatchType: knowledge.MatchSubstring,
		Entities: []EntitySummary{{
			Name: "FedNow", Type: "product", Description: "US instant payments",
			Confidence: 0.9, Source: types.SourceExtracted,
		}},
		Count: 1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("knowledge result mismatch (-want +got):\n%s", diff)
	}

	snapshot := f.run(CheckKnowledgeGraph, llm.Args{}).(KnowledgeResult)
	assert.Equal(t, knowledge.MatchSnapshot, snapshot.MatchType)
	assert.Equal(t, 1, snapshot.Count)
}

func TestCheckFeedbackHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	events := []types.FeedbackEvent{
		{UserID: "u1", SignalTitle: "FedNow adoption grows", SourceLabel: "Payments Dive", Kind: types.FeedbackUp, CreatedAt: testNow.Add(-24 * time.Hour)},
		{UserID: "u1", SignalTitle: "Crypto exchange hacked", SourceLabel: "CoinWire", Kind: types.FeedbackDown, CreatedAt: testNow.Add(-48 * time.Hour)},
		{UserID: "u1", SignalTitle: "FedNow pricing", SourceLabel: "Payments Dive", Kind: types.FeedbackClick, CreatedAt: testNow.Add(-72 * time.Hour)},
		{UserID: "u1", SignalTitle: "Old news", SourceLabel: "Payments Dive", Kind: types.FeedbackDismiss, CreatedAt: testNow.Add(-100 * 24 * time.Hour)},
	}
	for i := range events {
		require.NoError(t, f.store.RecordFeedback(ctx, &events[i]))
	}

	all := f.run(CheckFeedbackHistory, llm.Args{}).(FeedbackResult)
	assert.Equal(t, 2, all.Positive)
	assert.Equal(t, 1, all.Negative, "events older than 90 days are ignored")
	assert.Equal(t, map[string]SourceTally{"Payments Dive": {Up: 2}, "CoinWire": {Down: 1}}, all.BySource)

	filtered := f.run(CheckFeedbackHistory, llm.Args{"query": "fednow", "limit": float64(1)}).(FeedbackResult)
	assert.Equal(t, 2, filtered.Positive)
	assert.Len(t, filtered.Events, 1)
}

func TestCompareWithPeers(t *testing.T) {
	f := newFixture(t, types.CandidateSignal{Title: "Globex launches instant payouts", Summary: "Rival move"})
	ctx := context.Background()
	require.NoError(t, f.store.SavePeer(ctx, &types.PeerContact{UserID: "u1", Name: "Globex", Kind: types.PeerKindOrg}))
	require.NoError(t, f.store.SavePeer(ctx, &types.PeerContact{UserID: "u1", Name: "Initech", Kind: types.PeerKindOrg}))

	got := f.run(CompareWithPeers, llm.Args{"signalIndex": float64(0)}).(PeersResult)
	assert.Equal(t, []string{"Globex"}, got.Mentioned)
	assert.Len(t, got.Peers, 2)
	require.NotNil(t, got.SignalIndex)

	byQuery := f.run(CompareWithPeers, llm.Args{"query": "initech earnings"}).(PeersResult)
	assert.Equal(t, []string{"Initech"}, byQuery.Mentioned)
}

func TestGetSignalProvenance(t *testing.T) {
	f := newFixture(t, types.CandidateSignal{Title: "Stripe expands in Brazil", SourceURL: "https://news/stripe", Layer: "news"})
	require.NoError(t, f.store.RecordProvenance(context.Background(), &types.SignalProvenance{
		UserID: "u1", SourceURL: "https://news/stripe", Kind: types.ProvenancePeerTracked, Detail: "tracked peer Stripe",
		CreatedAt: testNow,
	}))

	got := f.run(GetSignalProvenance, llm.Args{"signal_index": float64(0)})
	want := ProvenanceResult{
		SignalIndex: 0,
		Layer:       "news",
		Provenance:  []ProvenanceSummary{{Kind: "peer_tracked", Detail: "tracked peer Stripe", Date: "2026-03-10"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("provenance mismatch (-want +got):\n%s", diff)
	}
}

func TestWebSearch(t *testing.T) {
	f := newFixture(t)
	got := f.run(WebSearch, llm.Args{"query": "ISO 20022 migration"}).(SearchToolResult)
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, []string{"ISO 20022 migration"}, f.search.calls())

	f.exec.deps.Search = nil
	none := f.run(WebSearch, llm.Args{"query": "x"})
	if diff := cmp.Diff(ErrorResult{Error: "web search provider not configured", Query: "x"}, none); diff != "" {
		t.Errorf("unconfigured search mismatch (-want +got):\n%s", diff)
	}

	f.exec.deps.Search = &fakeSearch{err: errors.New("503")}
	failed := f.run(WebSearch, llm.Args{"query": "x"}).(ErrorResult)
	assert.Equal(t, "x", failed.Query)
}

func TestQueryGoogleTrends(t *testing.T) {
	f := newFixture(t)
	f.trends.series = map[string][]float64{
		"fednow": {10, 10, 12, 12},
		"rtp":    {100, 100, 115, 115},
		"zelle":  {0, 0, 5, 5},
	}
	got := f.run(QueryGoogleTrends, llm.Args{"keywords": []any{"fednow", "rtp", "zelle", "a", "b", "c"}}).(TrendsResult)
	assert.Equal(t, []string{"fednow", "rtp", "zelle", "a", "b"}, got.Keywords, "keywords truncated to 5")
	assert.Equal(t, got.Keywords, f.trends.asked)

	directions := map[string]string{}
	for _, tr := range got.Trends {
		directions[tr.Keyword] = tr.Direction
	}
	assert.Equal(t, map[string]string{
		"fednow": TrendRising, "rtp": TrendStable, "zelle": TrendNew, "a": TrendStable, "b": TrendStable,
	}, directions)

	f.exec.deps.Trends = nil
	none := f.run(QueryGoogleTrends, llm.Args{"keywords": []any{"fednow"}})
	if diff := cmp.Diff(ErrorResult{Error: "trends provider not configured", Keywords: []string{"fednow"}}, none); diff != "" {
		t.Errorf("unconfigured trends mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		name      string
		series    []float64
		direction string
		change    float64
	}{
		{"20 percent rise", []float64{100, 100, 120, 120}, TrendRising, 20},
		{"exactly 15 percent is stable", []float64{100, 100, 115, 115}, TrendStable, 15},
		{"just over 15 percent", []float64{100, 100, 116, 116}, TrendRising, 16},
		{"20 percent fall", []float64{100, 100, 80, 80}, TrendFalling, -20},
		{"exactly -15 percent is stable", []float64{100, 100, 85, 85}, TrendStable, -15},
		{"new from zero", []float64{0, 0, 0, 3}, TrendNew, 0},
		{"all zero", []float64{0, 0, 0, 0}, TrendStable, 0},
		{"too short", []float64{5}, TrendStable, 0},
		{"odd length middle goes second", []float64{10, 20, 20}, TrendRising, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			direction, change := ClassifyTrend(tt.series)
			assert.Equal(t, tt.direction, direction)
			assert.InDelta(t, tt.change, change, 0.05)
		})
	}
}

func TestSearchBriefingHistory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveBriefing(context.Background(), &types.BriefingRecord{
		ID: "b1", UserID: "u1", CreatedAt: testNow.Add(-48 * time.Hour),
		Items: []types.BriefingItem{
			{Title: "FedNow passes 1,000 banks", Reason: types.ReasonNovelDevelopment},
			{Title: "Unrelated item", Reason: types.ReasonOther},
		},
	}))

	got := f.run(SearchBriefingHistory, llm.Args{"query": "FedNow"})
	want := HistoryResult{
		Query: "FedNow", Days: 30,
		Matches: []BriefingMatch{{BriefingID: "b1", Date: "2026-03-08", Title: "FedNow passes 1,000 banks", Reason: "novel_development"}},
		Count:   1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	_, isErr := f.run(SearchBriefingHistory, llm.Args{}).(ErrorResult)
	assert.True(t, isErr, "query is required")
}
