package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/scrypster/briefing/internal/llm"
	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/pkg/types"
)

// Similarity thresholds on title token sets.
const (
	clusterThreshold   = 0.3
	redundantThreshold = 0.6
)

// Freshness thresholds.
const (
	staleAfterHours     = 72
	freshnessLookback   = 30
	maxFreshnessIndices = 15
)

// Freshness labels.
const (
	Fresh  = "fresh"
	Stale  = "stale"
	Repeat = "repeat"
)

// FreshnessEntry describes one candidate for assess_freshness.
type FreshnessEntry struct {
	SignalIndex           int      `json:"signal_index"`
	AgeHours              *float64 `json:"age_hours,omitempty"`
	PreviouslyBriefed     bool     `json:"previously_briefed"`
	MatchingBriefingTitle string   `json:"matching_briefing_title,omitempty"`
	KnownEntityOverlap    []string `json:"known_entity_overlap"`
	Freshness             string   `json:"freshness"`
}

// FreshnessResult is returned by assess_freshness.
type FreshnessResult struct {
	Signals []FreshnessEntry `json:"signals"`
	Invalid []int            `json:"invalid_indices,omitempty"`
}

func (e *Executor) assessFreshness(ctx context.Context, rc *RunContext, args llm.Args) (any, error) {
	indices, invalid := validIndices(rc, args.Ints("signal_indices"))
	if len(indices) == 0 {
		return nil, fmt.Errorf("signal_indices must name at least one valid signal")
	}
	if len(indices) > maxFreshnessIndices {
		indices = indices[:maxFreshnessIndices]
	}

	briefings, err := e.recentBriefings(ctx, rc, freshnessLookback)
	if err != nil {
		return nil, err
	}
	known, err := e.deps.Entities.ListEntities(ctx, rc.UserID, storage.EntityListOptions{Limit: 500})
	if err != nil {
		return nil, fmt.Errorf("load knowledge: %w", err)
	}

	now := rc.now()
	out := FreshnessResult{Signals: make([]FreshnessEntry, 0, len(indices)), Invalid: invalid}
	for _, idx := range indices {
		c := rc.Candidates[idx]
		entry := FreshnessEntry{SignalIndex: idx, KnownEntityOverlap: []string{}, Freshness: Fresh}

		if c.PublishedAt != nil {
			age := roundTo(now.Sub(*c.PublishedAt).Hours(), 1)
			entry.AgeHours = &age
			if age > staleAfterHours {
				entry.Freshness = Stale
			}
		}

		if title, ok := previouslyBriefed(c, briefings); ok {
			entry.PreviouslyBriefed = true
			entry.MatchingBriefingTitle = title
			entry.Freshness = Repeat
		}

		text := c.Text()
		for _, k := range known {
			if len(k.Name) >= 3 && containsFold(text, k.Name) {
				entry.KnownEntityOverlap = append(entry.KnownEntityOverlap, k.Name)
			}
		}
		out.Signals = append(out.Signals, entry)
	}
	return out, nil
}

func previouslyBriefed(c types.CandidateSignal, briefings []types.BriefingRecord) (string, bool) {
	titleTokens := tokens(c.Title)
	for _, b := range briefings {
		for _, item := range b.Items {
			if c.SourceURL != "" && item.SourceURL == c.SourceURL {
				return item.Title, true
			}
			if strings.EqualFold(strings.TrimSpace(item.Title), strings.TrimSpace(c.Title)) {
				return item.Title, true
			}
			if jaccard(titleTokens, tokens(item.Title)) >= redundantThreshold {
				return item.Title, true
			}
		}
	}
	return "", false
}

// Contradiction is a pair of candidates reporting opposite movements on a
// shared subject.
type Contradiction struct {
	A      int    `json:"a"`
	B      int    `json:"b"`
	Reason string `json:"reason"`
}

// Redundancy is a pair of candidates covering the same story.
type Redundancy struct {
	A          int     `json:"a"`
	B          int     `json:"b"`
	Similarity float64 `json:"similarity"`
}

// CrossReferenceResult is returned by cross_reference_signals.
type CrossReferenceResult struct {
	Clusters       [][]int         `json:"clusters"`
	Contradictions []Contradiction `json:"contradictions"`
	Redundant      []Redundancy    `json:"redundant"`
	Invalid        []int           `json:"invalid_indices,omitempty"`
}

// polarity pairs words that report opposite outcomes.
var polarity = [][2]string{
	{"rise", "fall"}, {"rises", "falls"}, {"rising", "falling"},
	{"up", "down"}, {"gain", "loss"}, {"gains", "losses"},
	{"increase", "decrease"}, {"increases", "decreases"},
	{"approve", "reject"}, {"approved", "rejected"}, {"approves", "rejects"},
	{"beat", "miss"}, {"beats", "misses"}, {"surge", "plunge"}, {"surges", "plunges"},
	{"expand", "cut"}, {"expands", "cuts"}, {"hire", "layoff"}, {"hiring", "layoffs"},
	{"growth", "decline"}, {"strong", "weak"}, {"bullish", "bearish"},
	{"win", "lose"}, {"wins", "loses"}, {"launch", "cancel"}, {"launches", "cancels"},
}

func (e *Executor) crossReferenceSignals(_ context.Context, rc *RunContext, args llm.Args) (any, error) {
	indices, invalid := validIndices(rc, args.Ints("signal_indices"))
	if len(indices) < 2 {
		return nil, fmt.Errorf("cross_reference_signals needs at least 2 valid signal_indices, got %d", len(indices))
	}
	return crossReference(rc.Candidates, indices, invalid), nil
}

func crossReference(candidates []types.CandidateSignal, indices, invalid []int) CrossReferenceResult {
	toks := make(map[int]map[string]struct{}, len(indices))
	words := make(map[int]map[string]struct{}, len(indices))
	for _, i := range indices {
		toks[i] = tokens(candidates[i].Title)
		words[i] = wordSet(candidates[i].Text())
	}

	out := CrossReferenceResult{
		Clusters:       [][]int{},
		Contradictions: []Contradiction{},
		Redundant:      []Redundancy{},
		Invalid:        invalid,
	}

	parent := make(map[int]int, len(indices))
	for _, i := range indices {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for x := 0; x < len(indices); x++ {
		for y := x + 1; y < len(indices); y++ {
			a, b := indices[x], indices[y]
			sim := jaccard(toks[a], toks[b])
			sameURL := candidates[a].SourceURL != "" && candidates[a].SourceURL == candidates[b].SourceURL

			if sim >= clusterThreshold || sameURL {
				parent[find(b)] = find(a)
			}
			if sim >= redundantThreshold || sameURL {
				if sameURL {
					sim = 1
				}
				out.Redundant = append(out.Redundant, Redundancy{A: a, B: b, Similarity: roundTo(sim, 2)})
			}
			if reason, ok := contradiction(words[a], words[b], toks[a], toks[b]); ok {
				out.Contradictions = append(out.Contradictions, Contradiction{A: a, B: b, Reason: reason})
			}
		}
	}

	groups := make(map[int][]int)
	for _, i := range indices {
		root := find(i)
		groups[root] = append(groups[root], i)
	}
	for _, g := range groups {
		if len(g) > 1 {
			sort.Ints(g)
			out.Clusters = append(out.Clusters, g)
		}
	}
	sort.Slice(out.Clusters, func(i, j int) bool { return out.Clusters[i][0] < out.Clusters[j][0] })
	return out
}

// contradiction reports opposite polarity words on a shared subject: the
// two texts must share at least two significant tokens.
func contradiction(wa, wb, ta, tb map[string]struct{}) (string, bool) {
	common := shared(ta, tb)
	if len(common) < 2 {
		return "", false
	}
	for _, pair := range polarity {
		_, aPos := wa[pair[0]]
		_, aNeg := wa[pair[1]]
		_, bPos := wb[pair[0]]
		_, bNeg := wb[pair[1]]
		if (aPos && bNeg && !aNeg && !bPos) || (aNeg && bPos && !aPos && !bNeg) {
			sort.Strings(common)
			return fmt.Sprintf("opposite claims (%s vs %s) about %s", pair[0], pair[1], strings.Join(common, ", ")), true
		}
	}
	return "", false
}

// wordSet is every lowercase word of s, without length or stopword filtering.
func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		set[w] = struct{}{}
	}
	return set
}

// GapEntry describes one candidate for check_expertise_gaps.
type GapEntry struct {
	SignalIndex  int      `json:"signal_index"`
	UnknownTerms []string `json:"unknown_terms"`
	KnownTerms   []string `json:"known_terms"`
	GapScore     float64  `json:"gap_score"`
}

// GapsResult is returned by check_expertise_gaps.
type GapsResult struct {
	Signals []GapEntry `json:"signals"`
	Invalid []int      `json:"invalid_indices,omitempty"`
}

const (
	maxGapSignals = 10
	maxGapTerms   = 8
)

func (e *Executor) checkExpertiseGaps(ctx context.Context, rc *RunContext, args llm.Args) (any, error) {
	requested := args.Ints("signal_indices")
	var indices, invalid []int
	if len(requested) == 0 {
		for i := range rc.Candidates {
			indices = append(indices, i)
		}
	} else {
		indices, invalid = validIndices(rc, requested)
	}
	if len(indices) > maxGapSignals {
		indices = indices[:maxGapSignals]
	}

	out := GapsResult{Signals: make([]GapEntry, 0, len(indices)), Invalid: invalid}
	cache := make(map[string]bool)
	for _, idx := range indices {
		entry := GapEntry{SignalIndex: idx, UnknownTerms: []string{}, KnownTerms: []string{}}
		terms := keyTerms(rc.Candidates[idx].Text())
		if len(terms) > maxGapTerms {
			terms = terms[:maxGapTerms]
		}
		for _, term := range terms {
			key := strings.ToLower(term)
			known, ok := cache[key]
			if !ok {
				matches, err := e.deps.Entities.SearchEntities(ctx, rc.UserID, term, 1)
				if err != nil {
					return nil, fmt.Errorf("search knowledge for %q: %w", term, err)
				}
				known = len(matches) > 0
				cache[key] = known
			}
			if known {
				entry.KnownTerms = append(entry.KnownTerms, term)
			} else {
				entry.UnknownTerms = append(entry.UnknownTerms, term)
			}
		}
		if total := len(entry.KnownTerms) + len(entry.UnknownTerms); total > 0 {
			entry.GapScore = roundTo(float64(len(entry.UnknownTerms))/float64(total), 2)
		}
		out.Signals = append(out.Signals, entry)
	}
	return out, nil
}

// validIndices splits requested indices into in-range (deduplicated, in
// request order) and out-of-range.
func validIndices(rc *RunContext, requested []int) (valid, invalid []int) {
	seen := make(map[int]bool, len(requested))
	for _, i := range requested {
		if i < 0 || i >= len(rc.Candidates) {
			invalid = append(invalid, i)
			continue
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		valid = append(valid, i)
	}
	return valid, invalid
}

func roundTo(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
