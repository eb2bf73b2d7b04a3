package engine

import (
	"fmt"
	"strings"

	"github.com/scrypster/briefing/internal/tools"
	"github.com/scrypster/briefing/pkg/types"
)

type toolSpec struct {
	name string
	args string
	desc string
}

// toolSpecs follows tools.Names order.
var toolSpecs = []toolSpec{
	{tools.CheckKnowledgeGraph, `{"query": "optional text"}`,
		"What the user already knows. No query returns a snapshot."},
	{tools.CheckFeedbackHistory, `{"query": "optional text", "limit": 20}`,
		"The user's reactions to past briefing items over the last 90 days."},
	{tools.CompareWithPeers, `{"signal_index": 0, "query": "optional text"}`,
		"Tracked peer organisations and contacts, and which ones a signal mentions."},
	{tools.GetSignalProvenance, `{"signal_index": 0}`,
		"Why a signal surfaced for this user (tracked peer, forwarded, topic query, meeting)."},
	{tools.AssessFreshness, `{"signal_indices": [0, 1]}`,
		"Age, prior briefings and known-entity overlap per signal: fresh, stale or repeat."},
	{tools.WebSearch, `{"query": "text", "max_results": 5}`,
		"Search the web for context on a signal."},
	{tools.QueryGoogleTrends, `{"keywords": ["up to 5 terms"]}`,
		"Search interest direction per keyword: rising, falling, stable or new."},
	{tools.CheckTodayMeetings, `{}`,
		"Today's meetings, prep-worthiness and matching hints."},
	{tools.ResearchMeetingAttendees, `{"meeting_id": "optional id", "names": ["optional"]}`,
		"Background research on priority attendees. Skips when nobody qualifies."},
	{tools.SearchBriefingHistory, `{"query": "text", "days": 30}`,
		"Items already sent in recent briefings."},
	{tools.CrossReferenceSignals, `{"signal_indices": [0, 1]}`,
		"Clusters, contradictions and redundancy among 2 or more signals."},
	{tools.CheckExpertiseGaps, `{"signal_indices": [0, 1]}`,
		"Key terms in each signal the user does not know yet."},
	{tools.SubmitSelections, `{"selections": [{"signal_index": 0, "reason": "novel_development", "reason_label": "short label", "confidence": 0.8, "novelty_assessment": "what is new to this user", "attribution": "source credit"}]}`,
		"Final answer. Ends the run."},
}

// SystemPrompt builds the agent's system message.
func SystemPrompt(profile *types.UserProfile, cfg types.AgentScoringConfig) string {
	var b strings.Builder

	b.WriteString(`TASK: Choose which candidate signals are worth briefing this user on today.
You work in rounds. Each round you call exactly one tool. Use tools to check novelty against what the user knows, freshness, peers, meetings and trends before deciding.
OUTPUT: ONLY valid JSON. ONE object per reply: {"tool": "<name>", "args": {...}}. NO prose.

`)

	b.WriteString("TOOLS:\n")
	for _, t := range toolSpecs {
		fmt.Fprintf(&b, "- %s %s\n  %s\n", t.name, t.args, t.desc)
	}

	b.WriteString("\nREASONS (use exactly one per selection):\n")
	for _, r := range types.ValidSelectionReasons {
		fmt.Fprintf(&b, "- %s: %s\n", r, r.Label())
	}

	b.WriteString("\nRULES:\n")
	fmt.Fprintf(&b, "1. Select at most %d signals. Fewer is fine when fewer deserve attention.\n", cfg.TargetSelections)
	b.WriteString("2. signal_index must be the [index] shown in the candidate list.\n")
	b.WriteString("3. Skip anything the user already knows or was already briefed on.\n")
	if cfg.MeetingSlotCap > 0 {
		fmt.Fprintf(&b, "4. Meeting-prep signals may use at most %d of %d slots.\n", cfg.MeetingSlotCap, cfg.TargetSelections)
	}
	fmt.Fprintf(&b, "You have %d tool rounds. Call %s when ready.\n", cfg.MaxToolRounds, tools.SubmitSelections)

	if profile != nil {
		b.WriteString("\nUSER PROFILE:\n")
		writeField(&b, "Name", profile.Name)
		writeField(&b, "Role", profile.Role)
		writeField(&b, "Company", profile.Company)
		if len(profile.Expertise) > 0 {
			writeField(&b, "Expertise", strings.Join(profile.Expertise, ", "))
		}
		if len(profile.ImpressList) > 0 {
			writeField(&b, "Wants to impress", strings.Join(profile.ImpressList, ", "))
		}
	}

	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}

// CandidatesPrompt renders the first user turn: one line per candidate as
// "[i] (layer) title — summary (source)".
func CandidatesPrompt(candidates []types.CandidateSignal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CANDIDATE SIGNALS (%d):\n", len(candidates))
	for i, c := range candidates {
		b.WriteString(CandidateLine(i, c))
		b.WriteByte('\n')
	}
	b.WriteString("\nStart with a tool call.")
	return b.String()
}

// CandidateLine renders one candidate.
func CandidateLine(i int, c types.CandidateSignal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] ", i)
	if c.Layer != "" {
		fmt.Fprintf(&b, "(%s) ", c.Layer)
	}
	b.WriteString(strings.TrimSpace(c.Title))
	if summary := strings.TrimSpace(c.Summary); summary != "" {
		b.WriteString(" — ")
		b.WriteString(summary)
	}
	source := c.SourceLabel
	if source == "" {
		source = c.SourceURL
	}
	if source != "" {
		fmt.Fprintf(&b, " (%s)", source)
	}
	return b.String()
}

func toolResultPrompt(tool, body string) string {
	return fmt.Sprintf("Tool result for %s:\n%s", tool, body)
}

func freeTextPrompt() string {
	return fmt.Sprintf(`Your reply was not a tool call. Reply with ONLY one JSON object {"tool": "<name>", "args": {...}}. If you have enough information, call %s now.`, tools.SubmitSelections)
}

func rejectedSubmitPrompt(err error) string {
	return fmt.Sprintf(`Your %s call was not usable: %v. Resubmit with "selections" as a non-empty array of objects, each with an integer "signal_index" from the candidate list.`, tools.SubmitSelections, err)
}

func forceFinalizePrompt(target int) string {
	return fmt.Sprintf(`You are out of tool rounds. You MUST finalize now.
OUTPUT: ONLY {"tool": "%s", "args": {"selections": [...]}} with at most %d selections. Any other reply ends the run with no briefing.`, tools.SubmitSelections, target)
}
