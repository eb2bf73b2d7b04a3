// Package storage provides composable storage interfaces for the briefing system.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. Each component depends
// only on the slice of persistence it reads or writes.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/briefing/pkg/types"
)

// KnowledgeStore persists the per-user knowledge model.
type KnowledgeStore interface {
	// InsertEntity writes an entity unless (user_id, name, entity_type)
	// already exists. It reports whether a row was written; duplicates are
	// never an error.
	InsertEntity(ctx context.Context, entity *types.KnowledgeEntity) (bool, error)

	// GetEntity retrieves an entity by ID.
	// Returns ErrNotFound if the entity doesn't exist.
	GetEntity(ctx context.Context, id string) (*types.KnowledgeEntity, error)

	// ListEntities returns a user's entities, most recently reinforced first.
	ListEntities(ctx context.Context, userID string, opts EntityListOptions) ([]types.KnowledgeEntity, error)

	// SearchEntities performs a case-insensitive substring match against
	// entity name and description.
	SearchEntities(ctx context.Context, userID, query string, limit int) ([]types.KnowledgeEntity, error)

	// ReinforceEntity bumps last_reinforced for an entity.
	// Returns ErrNotFound if the entity doesn't exist.
	ReinforceEntity(ctx context.Context, id string, at time.Time) error

	// DeleteEntity removes an entity together with every edge referencing it.
	// Returns ErrNotFound if the entity doesn't exist.
	DeleteEntity(ctx context.Context, id string) error

	// InsertEdge links two entities of the same user.
	InsertEdge(ctx context.Context, edge *types.EntityEdge) error

	// ListEdges returns all edges touching an entity, in either direction.
	ListEdges(ctx context.Context, entityID string) ([]types.EntityEdge, error)

	// RecordPruned stores a sticky suppression record. Recording the same
	// name+type twice keeps the first record.
	RecordPruned(ctx context.Context, pruned *types.PrunedEntity) error

	// IsPruned reports whether name+type has been pruned for the user.
	// Name comparison is case-insensitive.
	IsPruned(ctx context.Context, userID, name string, entityType types.EntityType) (bool, error)

	// ListPruned returns every suppression record for a user.
	ListPruned(ctx context.Context, userID string) ([]types.PrunedEntity, error)
}

// SimilaritySearcher is implemented by backends that can rank entities by
// vector similarity inside the database. Backends without native vector
// support simply don't implement it; callers fall back to in-process cosine.
type SimilaritySearcher interface {
	// SimilarEntities returns entities whose cosine similarity to vec is
	// strictly greater than minSimilarity, best first, at most limit.
	// Returns ErrVectorSearchUnavailable when the backend lost vector support.
	SimilarEntities(ctx context.Context, userID string, vec []float32, minSimilarity float64, limit int) ([]types.ScoredEntity, error)
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	// SaveProfile creates or replaces a profile (upsert on user_id).
	SaveProfile(ctx context.Context, profile *types.UserProfile) error

	// GetProfile returns ErrNotFound if the user has no profile.
	GetProfile(ctx context.Context, userID string) (*types.UserProfile, error)

	// ListUserIDs returns every user with a profile, sorted.
	ListUserIDs(ctx context.Context) ([]string, error)
}

// UniverseStore persists versioned content universes.
type UniverseStore interface {
	// SaveUniverse appends a new version. When universe.Version is zero the
	// next version number is assigned and written back.
	SaveUniverse(ctx context.Context, userID string, universe *types.ContentUniverse) error

	// GetUniverse returns the latest version.
	// Returns ErrNotFound if the user has none.
	GetUniverse(ctx context.Context, userID string) (*types.ContentUniverse, error)
}

// FeedbackStore persists reactions to briefed items.
type FeedbackStore interface {
	RecordFeedback(ctx context.Context, event *types.FeedbackEvent) error

	// ListFeedback returns events created at or after since, newest first.
	ListFeedback(ctx context.Context, userID string, since time.Time, limit int) ([]types.FeedbackEvent, error)
}

// PeerStore persists tracked organisations and contacts.
type PeerStore interface {
	SavePeer(ctx context.Context, peer *types.PeerContact) error
	ListPeers(ctx context.Context, userID string) ([]types.PeerContact, error)
}

// ProvenanceStore records why signals surfaced for a user.
type ProvenanceStore interface {
	RecordProvenance(ctx context.Context, p *types.SignalProvenance) error

	// ListProvenance returns records matching either sourceURL (exact) or
	// title (case-insensitive). Empty arguments never match.
	ListProvenance(ctx context.Context, userID, sourceURL, title string) ([]types.SignalProvenance, error)
}

// MeetingStore persists calendar events.
type MeetingStore interface {
	// SaveMeeting creates or replaces a meeting (upsert on id).
	SaveMeeting(ctx context.Context, meeting *types.Meeting) error

	// ListMeetings returns meetings starting in [from, to], ordered by start.
	ListMeetings(ctx context.Context, userID string, from, to time.Time) ([]types.Meeting, error)
}

// BriefingStore persists delivered briefings.
type BriefingStore interface {
	SaveBriefing(ctx context.Context, record *types.BriefingRecord) error

	// ListBriefings returns briefings created at or after since, newest first.
	ListBriefings(ctx context.Context, userID string, since time.Time) ([]types.BriefingRecord, error)

	// LatestBriefing returns ErrNotFound if the user was never briefed.
	LatestBriefing(ctx context.Context, userID string) (*types.BriefingRecord, error)
}

// SignalStore persists ingested candidate signals.
type SignalStore interface {
	// SaveSignal writes a signal unless (user_id, source_url) already exists.
	// It reports whether a row was written.
	SaveSignal(ctx context.Context, signal *types.StoredSignal) (bool, error)

	// ListSignals returns signals ingested at or after since, newest first.
	ListSignals(ctx context.Context, userID string, since time.Time, limit int) ([]types.StoredSignal, error)
}

// IngestionStore persists polled sources and their backoff state.
type IngestionStore interface {
	// SaveQuery creates or replaces a query (upsert on id).
	SaveQuery(ctx context.Context, q *types.IngestionQuery) error

	// DueQueries returns queries with next_poll_at <= now, oldest first.
	DueQueries(ctx context.Context, now time.Time) ([]types.IngestionQuery, error)

	// UpdateQueryState persists next_poll_at, error_count, last_error and
	// last_success_at. Returns ErrNotFound if the query doesn't exist.
	UpdateQueryState(ctx context.Context, q *types.IngestionQuery) error
}

// Store composes every store a backend provides.
type Store interface {
	KnowledgeStore
	ProfileStore
	UniverseStore
	FeedbackStore
	PeerStore
	ProvenanceStore
	MeetingStore
	BriefingStore
	SignalStore
	IngestionStore

	// Close releases the underlying database.
	Close() error
}
