package types

import "time"

// UserProfile describes the professional a briefing is built for.
type UserProfile struct {
	UserID      string   `json:"user_id" yaml:"user_id"`
	Name        string   `json:"name" yaml:"name"`
	Email       string   `json:"email" yaml:"email"`
	Role        string   `json:"role" yaml:"role"`
	Company     string   `json:"company" yaml:"company"`
	EmailDomain string   `json:"email_domain" yaml:"email_domain"`
	Expertise   []string `json:"expertise" yaml:"expertise"`
	ImpressList []string `json:"impress_list" yaml:"impress_list"`
}

// ContentUniverse is a versioned per-user topical admission filter.
type ContentUniverse struct {
	Definition       string   `json:"definition" yaml:"definition"`
	CoreTopics       []string `json:"core_topics" yaml:"core_topics"`
	Exclusions       []string `json:"exclusions" yaml:"exclusions"`
	SeismicThreshold string   `json:"seismic_threshold" yaml:"seismic_threshold"`
	Version          int      `json:"version" yaml:"version"`
	GeneratedFrom    []string `json:"generated_from" yaml:"generated_from"`
}

// FeedbackKind is the user's reaction to a briefed item.
type FeedbackKind string

const (
	FeedbackUp      FeedbackKind = "up"
	FeedbackDown    FeedbackKind = "down"
	FeedbackClick   FeedbackKind = "click"
	FeedbackDismiss FeedbackKind = "dismiss"
)

// IsPositive reports whether the feedback counts as engagement.
func (k FeedbackKind) IsPositive() bool {
	return k == FeedbackUp || k == FeedbackClick
}

// FeedbackEvent is one recorded reaction.
type FeedbackEvent struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	SignalTitle string       `json:"signal_title"`
	SourceURL   string       `json:"source_url,omitempty"`
	SourceLabel string       `json:"source_label,omitempty"`
	Kind        FeedbackKind `json:"kind"`
	Comment     string       `json:"comment,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// PeerKind distinguishes tracked organisations from individual contacts.
type PeerKind string

const (
	PeerKindOrg     PeerKind = "peer_org"
	PeerKindContact PeerKind = "contact"
	PeerKindImpress PeerKind = "impress"
)

// PeerContact is an organisation or person the user tracks.
type PeerContact struct {
	ID           string   `json:"id"`
	UserID       string   `json:"user_id"`
	Name         string   `json:"name"`
	Organization string   `json:"organization,omitempty"`
	Title        string   `json:"title,omitempty"`
	Kind         PeerKind `json:"kind"`
}

// Attendee is a meeting participant.
type Attendee struct {
	Name     string `json:"name" yaml:"name"`
	Email    string `json:"email,omitempty" yaml:"email"`
	Title    string `json:"title,omitempty" yaml:"title"`
	Company  string `json:"company,omitempty" yaml:"company"`
	Internal bool   `json:"internal" yaml:"internal"`
}

// Meeting is a calendar event.
type Meeting struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
	Attendees []Attendee `json:"attendees"`
}

// BriefingItem is one delivered item of a briefing.
type BriefingItem struct {
	Title       string          `json:"title"`
	Summary     string          `json:"summary"`
	SourceURL   string          `json:"source_url,omitempty"`
	Reason      SelectionReason `json:"reason"`
	ReasonLabel string          `json:"reason_label"`
}

// BriefingRecord is a persisted briefing.
type BriefingRecord struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
	ModelUsed string         `json:"model_used"`
	Items     []BriefingItem `json:"items"`
}
