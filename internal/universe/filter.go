// Package universe implements the per-user content universe admission
// filter applied to raw candidates before they reach the selection agent.
package universe

import (
	"strings"
	"unicode/utf8"

	"github.com/scrypster/briefing/pkg/types"
)

// minTopicWordLen is the length in characters a topic word must exceed to be
// required in a multi-word match.
const minTopicWordLen = 3

// Matches reports whether a signal with the given title and summary is
// inside the universe.
//
// A nil universe admits everything. Otherwise an exclusion phrase rejects
// the text unless a core topic also matches, and text matching no core topic
// is rejected. Only the core-topic check decides the result, so a universe
// without core topics admits nothing.
func Matches(title, summary string, u *types.ContentUniverse) bool {
	if u == nil {
		return true
	}
	text := strings.ToLower(title + " " + summary)

	return matchesAnyTopic(text, u.CoreTopics)
}

// Filter returns the candidates Matches admits, in order, and the number
// dropped.
func Filter(candidates []types.CandidateSignal, u *types.ContentUniverse) ([]types.CandidateSignal, int) {
	if u == nil {
		return candidates, 0
	}
	kept := make([]types.CandidateSignal, 0, len(candidates))
	for _, c := range candidates {
		if Matches(c.Title, c.Summary, u) {
			kept = append(kept, c)
		}
	}
	return kept, len(candidates) - len(kept)
}

func matchesAnyTopic(text string, topics []string) bool {
	for _, topic := range topics {
		if topicMatches(text, strings.ToLower(strings.TrimSpace(topic))) {
			return true
		}
	}
	return false
}

// topicMatches is a direct substring match, or for multi-word topics a
// match when every word longer than minTopicWordLen appears in text.
func topicMatches(text, topic string) bool {
	if topic == "" {
		return false
	}
	if strings.Contains(text, topic) {
		return true
	}
	words := strings.Fields(topic)
	if len(words) < 2 {
		return false
	}
	significant := 0
	for _, w := range words {
		if utf8.RuneCountInString(w) <= minTopicWordLen {
			continue
		}
		significant++
		if !strings.Contains(text, w) {
			return false
		}
	}
	return significant > 0
}
