package universe

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/briefing/pkg/types"
)

func TestMatches(t *testing.T) {
	payments := &types.ContentUniverse{
		CoreTopics: []string{"real-time payments", "Open Banking", "card network fees"},
		Exclusions: []string{"celebrity", "sports"},
	}

	tests := []struct {
		name           string
		title, summary string
		universe       *types.ContentUniverse
		want           bool
	}{
		{"nil universe admits", "Anything at all", "", nil, true},
		{"nil universe admits excluded text", "celebrity sports gossip", "", nil, true},
		{"direct substring", "UK Open Banking hits 10m users", "", payments, true},
		{"case insensitive", "OPEN BANKING standards", "", payments, true},
		{"match in summary", "Weekly roundup", "new real-time payments rail", payments, true},
		{"multi-word all long words", "Fees charged by every card network rise", "", payments, true},
		{"multi-word missing a word", "Network outage at bank", "", payments, false},
		{"words in any order", "Banking, open for business", "", payments, true},
		{"exclusion rejects", "Celebrity wedding", "", payments, false},
		{"core topic overrides exclusion", "Celebrity endorses open banking app", "", payments, true},
		{"no match rejects", "Local weather", "", payments, false},
		{"only exclusions rejects unmatched", "Football scores", "weekend results", &types.ContentUniverse{Exclusions: []string{"celebrity"}}, false},
		{"only exclusions still rejects", "sports final", "", &types.ContentUniverse{Exclusions: []string{"sports"}}, false},
		{"empty universe rejects", "Local weather", "", &types.ContentUniverse{}, false},
		{"blank topics reject", "Local weather", "", &types.ContentUniverse{CoreTopics: []string{"  "}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.title, tt.summary, tt.universe))
		})
	}
}

func TestMatches_PrecedenceInTitleOnly(t *testing.T) {
	u := &types.ContentUniverse{CoreTopics: []string{"fintech"}, Exclusions: []string{"crypto"}}
	assert.True(t, Matches("crypto fintech", "", u))
	assert.False(t, Matches("crypto", "", u))
}

func TestTopicMatches_ShortWordsOnly(t *testing.T) {
	// No word is longer than three characters, so only a direct substring counts.
	assert.False(t, topicMatches("the ai act", "ai eu act"))
	assert.True(t, topicMatches("the ai eu act", "ai eu act"))
}

func TestTopicMatches_CountsCharactersNotBytes(t *testing.T) {
	// "für" is three characters but four bytes, so it is not a required word.
	assert.True(t, topicMatches("neue zahlungen bei banken", "zahlungen für banken"))
	assert.False(t, topicMatches("neue zahlungen", "zahlungen für banken"))
}

func TestFilter_EmptyCoreTopicsDropsAll(t *testing.T) {
	candidates := []types.CandidateSignal{{Title: "Payments news"}, {Title: "Sports news"}}
	kept, dropped := Filter(candidates, &types.ContentUniverse{Exclusions: []string{"sports"}})
	assert.Empty(t, kept)
	assert.Equal(t, 2, dropped)
}

func TestFilter(t *testing.T) {
	u := &types.ContentUniverse{CoreTopics: []string{"payments"}}
	candidates := []types.CandidateSignal{
		{Title: "Payments news"},
		{Title: "Sports news"},
		{Title: "Other", Summary: "about payments"},
	}
	kept, dropped := Filter(candidates, u)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, []types.CandidateSignal{candidates[0], candidates[2]}, kept)

	all, dropped := Filter(candidates, nil)
	assert.Zero(t, dropped)
	assert.Len(t, all, 3)
}
