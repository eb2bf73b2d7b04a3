package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/scrypster/briefing/internal/knowledge"
	"github.com/scrypster/briefing/internal/llm"
	"github.com/scrypster/briefing/pkg/types"
)

// EntitySummary is a knowledge entity as shown to the model.
type EntitySummary struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Confidence  float64  `json:"confidence"`
	Source      string   `json:"source"`
	Similarity  *float64 `json:"similarity,omitempty"`
}

// KnowledgeResult is returned by check_knowledge_graph.
type KnowledgeResult struct {
	Query     string              `json:"query,omitempty"`
	MatchType knowledge.MatchType `json:"match_type"`
	Entities  []EntitySummary     `json:"entities"`
	Count     int                 `json:"count"`
}

func (e *Executor) checkKnowledgeGraph(ctx context.Context, rc *RunContext, args llm.Args) (any, error) {
	if e.deps.Knowledge == nil {
		return nil, fmt.Errorf("knowledge model unavailable")
	}
	res, err := e.deps.Knowledge.Lookup(ctx, rc.UserID, args.String("query"))
	if err != nil {
		return nil, err
	}

	out := KnowledgeResult{Query: res.Query, MatchType: res.MatchType, Entities: []EntitySummary{}}
	for _, se := range res.Entities {
		summary := EntitySummary{
			Name:        se.Entity.Name,
			Type:        string(se.Entity.EntityType),
			Description: se.Entity.Description,
			Confidence:  se.Entity.Confidence,
			Source:      se.Entity.Source,
		}
		if res.MatchType == knowledge.MatchEmbedding {
			sim := roundTo(se.Similarity, 3)
			summary.Similarity = &sim
		}
		out.Entities = append(out.Entities, summary)
	}
	out.Count = len(out.Entities)
	return out, nil
}

// feedbackWindow is how far back check_feedback_history looks.
const feedbackWindow = 90 * 24 * time.Hour

// FeedbackSummary is one feedback event as shown to the model.
type FeedbackSummary struct {
	Title   string `json:"title"`
	Source  string `json:"source,omitempty"`
	Kind    string `json:"kind"`
	Comment string `json:"comment,omitempty"`
	Date    string `json:"date"`
}

// SourceTally counts reactions for one source label.
type SourceTally struct {
	Up   int `json:"up"`
	Down int `json:"down"`
}

// FeedbackResult is returned by check_feedback_history.
type FeedbackResult struct {
	Query    string                 `json:"query,omitempty"`
	Events   []FeedbackSummary      `json:"events"`
	Positive int                    `json:"positive"`
	Negative int                    `json:"negative"`
	BySource map[string]SourceTally `json:"by_source"`
}

func (e *Executor) checkFeedbackHistory(ctx context.Context, rc *RunContext, args llm.Args) (any, error) {
	query := args.String("query")
	limit := args.IntOr("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	events, err := e.deps.Feedback.ListFeedback(ctx, rc.UserID, rc.now().Add(-feedbackWindow), 500)
	if err != nil {
		return nil, fmt.Errorf("load feedback: %w", err)
	}

	out := FeedbackResult{Query: query, Events: []FeedbackSummary{}, BySource: map[string]SourceTally{}}
	for _, ev := range events {
		if query != "" && !containsFold(ev.SignalTitle, query) && !containsFold(ev.SourceLabel, query) && !containsFold(ev.Comment, query) {
			continue
		}
		positive := ev.Kind.IsPositive()
		if positive {
			out.Positive++
		} else {
			out.Negative++
		}
		if ev.SourceLabel != "" {
			tally := out.BySource[ev.SourceLabel]
			if positive {
				tally.Up++
			} else {
				tally.Down++
			}
			out.BySource[ev.SourceLabel] = tally
		}
		if len(out.Events) < limit {
			out.Events = append(out.Events, FeedbackSummary{
				Title:   ev.SignalTitle,
				Source:  ev.SourceLabel,
				Kind:    string(ev.Kind),
				Comment: ev.Comment,
				Date:    ev.CreatedAt.Format(time.DateOnly),
			})
		}
	}
	return out, nil
}

// PeerSummary is one tracked peer as shown to the model.
type PeerSummary struct {
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
	Kind         string `json:"kind"`
}

// PeersResult is returned by compare_with_peers.
type PeersResult struct {
	SignalIndex *int          `json:"signal_index,omitempty"`
	Peers       []PeerSummary `json:"peers"`
	Mentioned   []string      `json:"mentioned"`
}

func (e *Executor) compareWithPeers(ctx context.Context, rc *RunContext, args llm.Args) (any, error) {
	text := args.String("query")
	var out PeersResult
	if idx, ok := args.Int("signal_index"); ok {
		c, err := rc.candidate(idx)
		if err != nil {
			return nil, err
		}
		text = c.Text()
		out.SignalIndex = &idx
	}

	peers, err := e.deps.Peers.ListPeers(ctx, rc.UserID)
	if err != nil {
		return nil, fmt.Errorf("load peers: %w", err)
	}

	out.Peers = make([]PeerSummary, 0, len(peers))
	out.Mentioned = []string{}
	for _, p := range peers {
		out.Peers = append(out.Peers, PeerSummary{Name: p.Name, Organization: p.Organization, Kind: string(p.Kind)})
		if text == "" {
			continue
		}
		if containsFold(text, p.Name) || containsFold(text, p.Organization) {
			out.Mentioned = append(out.Mentioned, p.Name)
		}
	}
	return out, nil
}

// ProvenanceSummary is one provenance record as shown to the model.
type ProvenanceSummary struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
	Date   string `json:"date"`
}

// ProvenanceResult is returned by get_signal_provenance.
type ProvenanceResult struct {
	SignalIndex int                 `json:"signal_index"`
	Layer       string              `json:"layer"`
	Provenance  []ProvenanceSummary `json:"provenance"`
}

func (e *Executor) getSignalProvenance(ctx context.Context, rc *RunContext, args llm.Args) (any, error) {
	idx, ok := args.Int("signal_index")
	if !ok {
		return nil, fmt.Errorf("signal_index is required")
	}
	c, err := rc.candidate(idx)
	if err != nil {
		return nil, err
	}

	records, err := e.deps.Provenance.ListProvenance(ctx, rc.UserID, c.SourceURL, c.Title)
	if err != nil {
		return nil, fmt.Errorf("load provenance: %w", err)
	}
	out := ProvenanceResult{SignalIndex: idx, Layer: c.Layer, Provenance: []ProvenanceSummary{}}
	for _, p := range records {
		out.Provenance = append(out.Provenance, ProvenanceSummary{
			Kind:   string(p.Kind),
			Detail: p.Detail,
			Date:   p.CreatedAt.Format(time.DateOnly),
		})
	}
	return out, nil
}

// BriefingMatch is one past briefing item matching a history search.
type BriefingMatch struct {
	BriefingID string `json:"briefing_id"`
	Date       string `json:"date"`
	Title      string `json:"title"`
	Reason     string `json:"reason"`
}

// HistoryResult is returned by search_briefing_history.
type HistoryResult struct {
	Query   string          `json:"query"`
	Days    int             `json:"days"`
	Matches []BriefingMatch `json:"matches"`
	Count   int             `json:"count"`
}

func (e *Executor) searchBriefingHistory(ctx context.Context, rc *RunContext, args llm.Args) (any, error) {
	query := args.String("query")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	days := args.IntOr("days", 30)
	if days < 1 || days > 365 {
		days = 30
	}

	briefings, err := e.recentBriefings(ctx, rc, days)
	if err != nil {
		return nil, err
	}
	queryTokens := tokens(query)
	out := HistoryResult{Query: query, Days: days, Matches: []BriefingMatch{}}
	for _, b := range briefings {
		for _, item := range b.Items {
			text := item.Title + " " + item.Summary
			if !containsFold(text, query) && jaccard(queryTokens, tokens(text)) < 0.3 {
				continue
			}
			out.Matches = append(out.Matches, BriefingMatch{
				BriefingID: b.ID,
				Date:       b.CreatedAt.Format(time.DateOnly),
				Title:      item.Title,
				Reason:     string(item.Reason),
			})
		}
	}
	out.Count = len(out.Matches)
	return out, nil
}

func (e *Executor) recentBriefings(ctx context.Context, rc *RunContext, days int) ([]types.BriefingRecord, error) {
	since := rc.now().Add(-time.Duration(days) * 24 * time.Hour)
	briefings, err := e.deps.Briefings.ListBriefings(ctx, rc.UserID, since)
	if err != nil {
		return nil, fmt.Errorf("load briefings: %w", err)
	}
	return briefings, nil
}
