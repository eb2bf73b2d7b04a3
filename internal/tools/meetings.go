package tools

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scrypster/briefing/internal/llm"
	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/pkg/types"
)

// Meeting windows.
const (
	// meetingWindow is the distance either side of now treated as "today",
	// which absorbs timezone skew without timezone math.
	meetingWindow = 14 * time.Hour

	recurrenceLookback  = 30 * 24 * time.Hour
	recurrenceThreshold = 2

	maxResearchAttendees = 5
	researchResults      = 3
	researchConcurrency  = 3
)

// Priority is an attendee's prep priority.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PrioritySkip   Priority = "skip"
)

var (
	seniorTitle = regexp.MustCompile(`(?i)\b(ceo|cfo|coo|cto|cio|cmo|cro|ciso|chief|president|vp|svp|evp|vice president|head|director|founder|co-founder|partner|managing director|general manager|board)\b`)
	juniorTitle = regexp.MustCompile(`(?i)\b(intern|assistant|coordinator|trainee|apprentice)\b`)
)

// ClassifyAttendee assigns a prep priority. Impress-list membership wins,
// then junior titles are skipped, then seniority crossed with
// internal/external, then plain externals are low.
func ClassifyAttendee(a types.Attendee, internal bool, impress []string) Priority {
	if onImpressList(a, impress) {
		return PriorityHigh
	}
	if juniorTitle.MatchString(a.Title) {
		return PrioritySkip
	}
	senior := seniorTitle.MatchString(a.Title)
	switch {
	case senior && !internal:
		return PriorityHigh
	case senior:
		return PriorityMedium
	case !internal:
		return PriorityLow
	}
	return PrioritySkip
}

func onImpressList(a types.Attendee, impress []string) bool {
	for _, entry := range impress {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.EqualFold(entry, a.Name) || strings.EqualFold(entry, a.Email) || strings.EqualFold(entry, a.Company) {
			return true
		}
	}
	return false
}

// isInternal reports whether the attendee works for the user's company.
func isInternal(a types.Attendee, profile *types.UserProfile) bool {
	if a.Internal {
		return true
	}
	if profile == nil {
		return false
	}
	if profile.EmailDomain != "" {
		if at := strings.LastIndexByte(a.Email, '@'); at >= 0 && strings.EqualFold(a.Email[at+1:], profile.EmailDomain) {
			return true
		}
	}
	return profile.Company != "" && strings.EqualFold(strings.TrimSpace(a.Company), strings.TrimSpace(profile.Company))
}

// AttendeeSummary is an attendee with their prep priority.
type AttendeeSummary struct {
	Name     string   `json:"name"`
	Title    string   `json:"title,omitempty"`
	Company  string   `json:"company,omitempty"`
	Internal bool     `json:"internal"`
	Priority Priority `json:"priority"`
}

// MeetingSummary is one meeting in the today window.
type MeetingSummary struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Start      string            `json:"start"`
	PrepWorthy bool              `json:"prep_worthy"`
	Recurring  bool              `json:"recurring"`
	Attendees  []AttendeeSummary `json:"attendees"`
}

// MatchingHints are the names a prep-worthy meeting makes relevant.
type MatchingHints struct {
	Companies []string `json:"companies"`
	People    []string `json:"people"`
	Topics    []string `json:"topics"`
}

// MeetingsResult is returned by check_today_meetings.
type MeetingsResult struct {
	Meetings []MeetingSummary `json:"meetings"`
	Hints    MatchingHints    `json:"hints"`
}

// todayMeetings loads and classifies meetings in the today window.
func (e *Executor) todayMeetings(ctx context.Context, rc *RunContext) (MeetingsResult, error) {
	now := rc.now()
	out := MeetingsResult{
		Meetings: []MeetingSummary{},
		Hints:    MatchingHints{Companies: []string{}, People: []string{}, Topics: []string{}},
	}

	meetings, err := e.deps.Meetings.ListMeetings(ctx, rc.UserID, now.Add(-meetingWindow), now.Add(meetingWindow))
	if err != nil {
		return out, fmt.Errorf("load meetings: %w", err)
	}
	if len(meetings) == 0 {
		return out, nil
	}

	history, err := e.deps.Meetings.ListMeetings(ctx, rc.UserID, now.Add(-recurrenceLookback), now.Add(meetingWindow))
	if err != nil {
		return out, fmt.Errorf("load meeting history: %w", err)
	}
	titleCounts := make(map[string]int)
	for _, m := range history {
		titleCounts[normalizeTitle(m.Title)]++
	}

	profile, err := e.deps.Profiles.GetProfile(ctx, rc.UserID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return out, fmt.Errorf("load profile: %w", err)
	}
	impress, err := e.impressList(ctx, rc.UserID, profile)
	if err != nil {
		return out, err
	}

	hints := newHintSet()
	for _, m := range meetings {
		summary := MeetingSummary{
			ID:        m.ID,
			Title:     m.Title,
			Start:     m.Start.UTC().Format(time.RFC3339),
			Recurring: titleCounts[normalizeTitle(m.Title)] > recurrenceThreshold,
			Attendees: make([]AttendeeSummary, 0, len(m.Attendees)),
		}
		priority := false
		for _, a := range m.Attendees {
			internal := isInternal(a, profile)
			p := ClassifyAttendee(a, internal, impress)
			if p == PriorityHigh || p == PriorityMedium {
				priority = true
			}
			summary.Attendees = append(summary.Attendees, AttendeeSummary{
				Name: a.Name, Title: a.Title, Company: a.Company, Internal: internal, Priority: p,
			})
		}
		summary.PrepWorthy = priority && !summary.Recurring

		if summary.PrepWorthy {
			hints.topics.add(m.Title)
			for _, a := range summary.Attendees {
				if !a.Internal && a.Company != "" {
					hints.companies.add(a.Company)
				}
				if a.Priority == PriorityHigh || a.Priority == PriorityMedium {
					hints.people.add(a.Name)
				}
			}
		}
		out.Meetings = append(out.Meetings, summary)
	}
	out.Hints = MatchingHints{
		Companies: hints.companies.list,
		People:    hints.people.list,
		Topics:    hints.topics.list,
	}
	return out, nil
}

// impressList merges the profile's impress list with impress-kind peers.
func (e *Executor) impressList(ctx context.Context, userID string, profile *types.UserProfile) ([]string, error) {
	var list []string
	if profile != nil {
		list = append(list, profile.ImpressList...)
	}
	if e.deps.Peers == nil {
		return list, nil
	}
	peers, err := e.deps.Peers.ListPeers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load peers: %w", err)
	}
	for _, p := range peers {
		if p.Kind == types.PeerKindImpress {
			list = append(list, p.Name)
		}
	}
	return list, nil
}

func (e *Executor) checkTodayMeetings(ctx context.Context, rc *RunContext, _ llm.Args) (any, error) {
	return e.todayMeetings(ctx, rc)
}

// ResearchedAttendee is the research output for one attendee.
type ResearchedAttendee struct {
	Name           string         `json:"name"`
	Company        string         `json:"company,omitempty"`
	Priority       Priority       `json:"priority"`
	PersonResults  []SearchResult `json:"person_results"`
	CompanyResults []SearchResult `json:"company_results"`
	Error          string         `json:"error,omitempty"`
}

// ResearchResult is returned by research_meeting_attendees.
type ResearchResult struct {
	Status    string               `json:"status"`
	Reason    string               `json:"reason,omitempty"`
	Attendees []ResearchedAttendee `json:"attendees"`
}

// Research statuses.
const (
	StatusResearched = "researched"
	StatusSkip       = "skip"
)

func (e *Executor) researchMeetingAttendees(ctx context.Context, rc *RunContext, args llm.Args) (any, error) {
	today, err := e.todayMeetings(ctx, rc)
	if err != nil {
		return nil, err
	}

	meetingID := args.String("meeting_id")
	names := args.Strings("names")

	var targets []AttendeeSummary
	seen := make(map[string]bool)
	for _, m := range today.Meetings {
		if meetingID != "" && m.ID != meetingID {
			continue
		}
		for _, a := range m.Attendees {
			if len(names) > 0 && !nameListed(a.Name, names) {
				continue
			}
			if a.Priority != PriorityHigh && a.Priority != PriorityMedium {
				continue
			}
			key := strings.ToLower(a.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			targets = append(targets, a)
		}
	}

	if len(targets) == 0 {
		return ResearchResult{
			Status:    StatusSkip,
			Reason:    "no high or medium priority attendees to research",
			Attendees: []ResearchedAttendee{},
		}, nil
	}
	sort.SliceStable(targets, func(i, j int) bool {
		return priorityRank(targets[i].Priority) < priorityRank(targets[j].Priority)
	})
	if len(targets) > maxResearchAttendees {
		targets = targets[:maxResearchAttendees]
	}
	if e.deps.Search == nil {
		return ErrorResult{Error: "attendee research needs web search: " + ErrProviderNotConfigured.Error()}, nil
	}

	out := ResearchResult{Status: StatusResearched, Attendees: make([]ResearchedAttendee, len(targets))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(researchConcurrency)
	for i, a := range targets {
		g.Go(func() error {
			out.Attendees[i] = e.researchAttendee(gctx, a)
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// researchAttendee runs the person and company searches concurrently. A
// failed search leaves its result list empty and records the error.
func (e *Executor) researchAttendee(ctx context.Context, a AttendeeSummary) ResearchedAttendee {
	res := ResearchedAttendee{
		Name:           a.Name,
		Company:        a.Company,
		Priority:       a.Priority,
		PersonResults:  []SearchResult{},
		CompanyResults: []SearchResult{},
	}

	var personErr, companyErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		query := a.Name
		if a.Company != "" {
			query += " " + a.Company
		}
		results, err := e.deps.Search.Search(gctx, query, researchResults)
		if err != nil {
			personErr = err
			return nil
		}
		res.PersonResults = append(res.PersonResults, results...)
		return nil
	})
	if a.Company != "" {
		g.Go(func() error {
			results, err := e.deps.Search.Search(gctx, a.Company+" news", researchResults)
			if err != nil {
				companyErr = err
				return nil
			}
			res.CompanyResults = append(res.CompanyResults, results...)
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(personErr, companyErr); err != nil {
		res.Error = err.Error()
	}
	return res
}

func priorityRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

func nameListed(name string, names []string) bool {
	for _, n := range names {
		if strings.EqualFold(strings.TrimSpace(n), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// orderedSet keeps first-seen order and ignores case duplicates.
type orderedSet struct {
	seen map[string]bool
	list []string
}

func (s *orderedSet) add(v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	key := strings.ToLower(v)
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.list = append(s.list, v)
}

type hintSet struct {
	companies, people, topics *orderedSet
}

func newHintSet() hintSet {
	mk := func() *orderedSet { return &orderedSet{seen: map[string]bool{}, list: []string{}} }
	return hintSet{companies: mk(), people: mk(), topics: mk()}
}
