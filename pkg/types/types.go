// Package types defines the core data structures for the briefing system.
// These types represent candidate signals, the per-user knowledge model,
// content universes and the selections produced by a scoring run.
package types

import "strings"

// EntityType classifies a knowledge entity.
type EntityType string

// Knowledge entity type constants.
const (
	EntityTypeCompany EntityType = "company"
	EntityTypePerson  EntityType = "person"
	EntityTypeConcept EntityType = "concept"
	EntityTypeTerm    EntityType = "term"
	EntityTypeProduct EntityType = "product"
	EntityTypeEvent   EntityType = "event"
	EntityTypeFact    EntityType = "fact"
)

// ValidEntityTypes is a slice of all valid entity types for validation.
var ValidEntityTypes = []EntityType{
	EntityTypeCompany,
	EntityTypePerson,
	EntityTypeConcept,
	EntityTypeTerm,
	EntityTypeProduct,
	EntityTypeEvent,
	EntityTypeFact,
}

// IsValidEntityType checks if the given entity type is valid.
func IsValidEntityType(entityType string) bool {
	for _, t := range ValidEntityTypes {
		if string(t) == entityType {
			return true
		}
	}
	return false
}

// Entity source constants. Sources describe how an entity entered the
// knowledge model.
const (
	// SourceProfileDerived marks entities derived from the user's own profile.
	SourceProfileDerived = "profile-derived"

	// SourceRapidFire marks entities the user confirmed in a rapid-fire
	// onboarding round.
	SourceRapidFire = "rapid-fire"

	SourceBriefing  = "briefing"
	SourceFeedback  = "feedback"
	SourceExtracted = "extracted"
)

// PruneExemptSources lists the sources whose entities are never pruned.
var PruneExemptSources = []string{SourceProfileDerived, SourceRapidFire}

// IsPruneExempt reports whether entities from source can never be pruned.
func IsPruneExempt(source string) bool {
	for _, s := range PruneExemptSources {
		if s == source {
			return true
		}
	}
	return false
}

// SelectionReason is the closed set of reasons a signal may be selected for.
type SelectionReason string

// Selection reason constants.
const (
	ReasonNovelDevelopment SelectionReason = "novel_development"
	ReasonPeerActivity     SelectionReason = "peer_activity"
	ReasonMeetingPrep      SelectionReason = "meeting_prep"
	ReasonTrendShift       SelectionReason = "trend_shift"
	ReasonExpertiseGap     SelectionReason = "expertise_gap"
	ReasonUserForwarded    SelectionReason = "user_forwarded"
	ReasonCompetitiveIntel SelectionReason = "competitive_intel"
	ReasonRegulatoryChange SelectionReason = "regulatory_change"
	ReasonContradiction    SelectionReason = "contradiction"
	ReasonFollowUp         SelectionReason = "follow_up"
	ReasonOther            SelectionReason = "other"
)

// ValidSelectionReasons lists every selection reason in prompt order.
var ValidSelectionReasons = []SelectionReason{
	ReasonNovelDevelopment,
	ReasonPeerActivity,
	ReasonMeetingPrep,
	ReasonTrendShift,
	ReasonExpertiseGap,
	ReasonUserForwarded,
	ReasonCompetitiveIntel,
	ReasonRegulatoryChange,
	ReasonContradiction,
	ReasonFollowUp,
	ReasonOther,
}

var reasonLabels = map[SelectionReason]string{
	ReasonNovelDevelopment: "New development",
	ReasonPeerActivity:     "Peer activity",
	ReasonMeetingPrep:      "Meeting prep",
	ReasonTrendShift:       "Trend shift",
	ReasonExpertiseGap:     "Fills a knowledge gap",
	ReasonUserForwarded:    "You flagged this",
	ReasonCompetitiveIntel: "Competitive intel",
	ReasonRegulatoryChange: "Regulatory change",
	ReasonContradiction:    "Conflicting reports",
	ReasonFollowUp:         "Follow-up",
	ReasonOther:            "Worth knowing",
}

// Label returns the human-readable label for the reason.
func (r SelectionReason) Label() string {
	if l, ok := reasonLabels[r]; ok {
		return l
	}
	return reasonLabels[ReasonOther]
}

// ParseSelectionReason maps free-form model output onto a known reason.
// Matching is case-insensitive and tolerates hyphens and spaces; anything
// unrecognised becomes ReasonOther.
func ParseSelectionReason(s string) SelectionReason {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	for _, r := range ValidSelectionReasons {
		if string(r) == norm {
			return r
		}
	}
	return ReasonOther
}
