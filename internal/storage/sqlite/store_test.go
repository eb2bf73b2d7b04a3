package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/pkg/types"
)

// newTestStore creates a temp-file SQLite store for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "briefing.db"), nil)
	require.NoError(t, err, "failed to create test store")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInsertEntity_DuplicateIsNoOp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &types.KnowledgeEntity{
		UserID: "u1", EntityType: types.EntityTypeCompany, Name: "Acme",
		Source: types.SourceExtracted, Confidence: 0.8,
	}
	inserted, err := store.InsertEntity(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, first.ID)

	dup := &types.KnowledgeEntity{
		UserID: "u1", EntityType: types.EntityTypeCompany, Name: "Acme",
		Source: types.SourceBriefing, Confidence: 0.1,
	}
	inserted, err = store.InsertEntity(ctx, dup)
	require.NoError(t, err, "duplicate insert must not be an error")
	assert.False(t, inserted)

	// Same name, different type is a distinct entity.
	other := &types.KnowledgeEntity{
		UserID: "u1", EntityType: types.EntityTypeProduct, Name: "Acme",
		Source: types.SourceExtracted,
	}
	inserted, err = store.InsertEntity(ctx, other)
	require.NoError(t, err)
	assert.True(t, inserted)

	all, err := store.ListEntities(ctx, "u1", storage.EntityListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestInsertEntity_InvalidType(t *testing.T) {
	store := newTestStore(t)
	_, err := store.InsertEntity(context.Background(), &types.KnowledgeEntity{
		UserID: "u1", EntityType: "planet", Name: "Mars",
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestEntityEmbeddingRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := &types.KnowledgeEntity{
		UserID: "u1", EntityType: types.EntityTypeConcept, Name: "Retrieval augmented generation",
		Source: types.SourceExtracted, Embedding: []float32{0.25, -1.5, 3},
	}
	_, err := store.InsertEntity(ctx, e)
	require.NoError(t, err)

	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -1.5, 3}, got.Embedding)

	embedded, err := store.ListEntities(ctx, "u1", storage.EntityListOptions{WithEmbeddingOnly: true})
	require.NoError(t, err)
	assert.Len(t, embedded, 1)
}

func TestListEntities_ExcludeSourcesAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, src := range []string{types.SourceProfileDerived, types.SourceRapidFire, types.SourceExtracted, types.SourceBriefing} {
		_, err := store.InsertEntity(ctx, &types.KnowledgeEntity{
			UserID: "u1", EntityType: types.EntityTypeTerm, Name: "term-" + string(rune('a'+i)), Source: src,
		})
		require.NoError(t, err)
	}

	got, err := store.ListEntities(ctx, "u1", storage.EntityListOptions{
		ExcludeSources: []string{types.SourceProfileDerived, types.SourceRapidFire},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, e := range got {
		assert.False(t, types.IsPruneExempt(e.Source))
	}

	limited, err := store.ListEntities(ctx, "u1", storage.EntityListOptions{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, limited, 3)
}

func TestSearchEntities_Substring(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertEntity(ctx, &types.KnowledgeEntity{
		UserID: "u1", EntityType: types.EntityTypeCompany, Name: "Stripe",
		Description: "Payments infrastructure", Source: types.SourceExtracted,
	})
	require.NoError(t, err)
	_, err = store.InsertEntity(ctx, &types.KnowledgeEntity{
		UserID: "u2", EntityType: types.EntityTypeCompany, Name: "Stripe", Source: types.SourceExtracted,
	})
	require.NoError(t, err)

	got, err := store.SearchEntities(ctx, "u1", "PAYMENTS", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Stripe", got[0].Name)

	none, err := store.SearchEntities(ctx, "u1", "100%_off", 10)
	require.NoError(t, err)
	assert.Empty(t, none, "LIKE wildcards in the query must match literally")
}

func TestDeleteEntity_RemovesEdges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := &types.KnowledgeEntity{UserID: "u1", EntityType: types.EntityTypePerson, Name: "Ada", Source: types.SourceExtracted}
	b := &types.KnowledgeEntity{UserID: "u1", EntityType: types.EntityTypeCompany, Name: "Analytical Engines", Source: types.SourceExtracted}
	_, err := store.InsertEntity(ctx, a)
	require.NoError(t, err)
	_, err = store.InsertEntity(ctx, b)
	require.NoError(t, err)
	require.NoError(t, store.InsertEdge(ctx, &types.EntityEdge{
		UserID: "u1", FromEntityID: a.ID, ToEntityID: b.ID, Relation: "works_at",
	}))

	edges, err := store.ListEdges(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)

	require.NoError(t, store.DeleteEntity(ctx, a.ID))

	edges, err = store.ListEdges(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, edges)

	_, err = store.GetEntity(ctx, a.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.DeleteEntity(ctx, a.ID), storage.ErrNotFound)
}

func TestPrunedRecordsAreStickyAndCaseInsensitive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordPruned(ctx, &types.PrunedEntity{
		UserID: "u1", Name: "Email", EntityType: types.EntityTypeTerm, Reason: "too generic",
	}))
	require.NoError(t, store.RecordPruned(ctx, &types.PrunedEntity{
		UserID: "u1", Name: "email", EntityType: types.EntityTypeTerm, Reason: "again",
	}))

	pruned, err := store.IsPruned(ctx, "u1", "  EMAIL ", types.EntityTypeTerm)
	require.NoError(t, err)
	assert.True(t, pruned)

	pruned, err = store.IsPruned(ctx, "u1", "email", types.EntityTypeConcept)
	require.NoError(t, err)
	assert.False(t, pruned, "suppression is keyed by name and type")

	records, err := store.ListPruned(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "too generic", records[0].Reason)
}

func TestReinforceEntity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := &types.KnowledgeEntity{UserID: "u1", EntityType: types.EntityTypeFact, Name: "Series B closed", Source: types.SourceExtracted}
	_, err := store.InsertEntity(ctx, e)
	require.NoError(t, err)

	later := e.LastReinforced.Add(48 * time.Hour)
	require.NoError(t, store.ReinforceEntity(ctx, e.ID, later))

	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, later, got.LastReinforced, time.Millisecond)

	assert.ErrorIs(t, store.ReinforceEntity(ctx, "missing", later), storage.ErrNotFound)
}

func TestProfileAndUniverse(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetProfile(ctx, "u1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	p := &types.UserProfile{
		UserID: "u1", Name: "Sam", Company: "Acme", EmailDomain: "acme.com",
		Expertise: []string{"payments"}, ImpressList: []string{"Jane Doe"},
	}
	require.NoError(t, store.SaveProfile(ctx, p))
	p.Role = "VP Product"
	require.NoError(t, store.SaveProfile(ctx, p))

	got, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	ids, err := store.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)

	_, err = store.GetUniverse(ctx, "u1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	v1 := &types.ContentUniverse{Definition: "fintech", CoreTopics: []string{"payments"}}
	require.NoError(t, store.SaveUniverse(ctx, "u1", v1))
	assert.Equal(t, 1, v1.Version)

	v2 := &types.ContentUniverse{Definition: "fintech v2", CoreTopics: []string{"payments", "open banking"}, Exclusions: []string{"crypto"}}
	require.NoError(t, store.SaveUniverse(ctx, "u1", v2))
	assert.Equal(t, 2, v2.Version)

	latest, err := store.GetUniverse(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, []string{"crypto"}, latest.Exclusions)
}

func TestFeedbackAndPeers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.RecordFeedback(ctx, &types.FeedbackEvent{
		UserID: "u1", SignalTitle: "old", Kind: types.FeedbackDown, CreatedAt: now.Add(-100 * 24 * time.Hour),
	}))
	require.NoError(t, store.RecordFeedback(ctx, &types.FeedbackEvent{
		UserID: "u1", SignalTitle: "recent", Kind: types.FeedbackUp, SourceLabel: "FT", CreatedAt: now.Add(-time.Hour),
	}))

	events, err := store.ListFeedback(ctx, "u1", now.Add(-90*24*time.Hour), 20)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "recent", events[0].SignalTitle)
	assert.Equal(t, "FT", events[0].SourceLabel)

	require.NoError(t, store.SavePeer(ctx, &types.PeerContact{UserID: "u1", Name: "Globex", Kind: types.PeerKindOrg}))
	require.NoError(t, store.SavePeer(ctx, &types.PeerContact{UserID: "u1", Name: "Alice", Organization: "Initech"}))

	peers, err := store.ListPeers(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, "Alice", peers[0].Name)
	assert.Equal(t, types.PeerKindContact, peers[0].Kind)
}

func TestProvenanceMatchesURLOrTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordProvenance(ctx, &types.SignalProvenance{
		UserID: "u1", SourceURL: "https://example.com/a", Title: "Acme raises", Kind: types.ProvenancePeerTracked,
	}))
	require.NoError(t, store.RecordProvenance(ctx, &types.SignalProvenance{
		UserID: "u1", Title: "Forwarded memo", Kind: types.ProvenanceUserForwarded,
	}))

	byURL, err := store.ListProvenance(ctx, "u1", "https://example.com/a", "")
	require.NoError(t, err)
	require.Len(t, byURL, 1)
	assert.Equal(t, types.ProvenancePeerTracked, byURL[0].Kind)

	byTitle, err := store.ListProvenance(ctx, "u1", "https://other", "FORWARDED MEMO")
	require.NoError(t, err)
	require.Len(t, byTitle, 1)

	none, err := store.ListProvenance(ctx, "u1", "", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMeetingsWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveMeeting(ctx, &types.Meeting{
		UserID: "u1", Title: "Board prep", Start: now.Add(2 * time.Hour),
		Attendees: []types.Attendee{{Name: "Jane", Company: "Globex", Title: "CEO"}},
	}))
	require.NoError(t, store.SaveMeeting(ctx, &types.Meeting{
		UserID: "u1", Title: "Next week", Start: now.Add(7 * 24 * time.Hour),
	}))

	got, err := store.ListMeetings(ctx, "u1", now.Add(-14*time.Hour), now.Add(14*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Board prep", got[0].Title)
	require.Len(t, got[0].Attendees, 1)
	assert.Equal(t, "CEO", got[0].Attendees[0].Title)
	assert.Equal(t, now.Add(30*time.Minute+2*time.Hour), got[0].End)
}

func TestBriefings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.LatestBriefing(ctx, "u1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	now := time.Now().UTC()
	require.NoError(t, store.SaveBriefing(ctx, &types.BriefingRecord{
		UserID: "u1", CreatedAt: now.Add(-48 * time.Hour), ModelUsed: "m",
		Items: []types.BriefingItem{{Title: "Older", Reason: types.ReasonTrendShift}},
	}))
	require.NoError(t, store.SaveBriefing(ctx, &types.BriefingRecord{
		UserID: "u1", CreatedAt: now.Add(-time.Hour), ModelUsed: "m",
		Items: []types.BriefingItem{{Title: "Newer", Reason: types.ReasonPeerActivity}},
	}))

	latest, err := store.LatestBriefing(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, latest.Items, 1)
	assert.Equal(t, "Newer", latest.Items[0].Title)

	recent, err := store.ListBriefings(ctx, "u1", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestSignalsDedupeByURL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sig := &types.StoredSignal{UserID: "u1", Title: "A", SourceURL: "https://x/a", Layer: "news"}
	ok, err := store.SaveSignal(ctx, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SaveSignal(ctx, &types.StoredSignal{UserID: "u1", Title: "A again", SourceURL: "https://x/a", Layer: "news"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.SaveSignal(ctx, &types.StoredSignal{UserID: "u2", Title: "A", SourceURL: "https://x/a", Layer: "news"})
	require.NoError(t, err)
	assert.True(t, ok, "dedupe is per user")

	got, err := store.ListSignals(ctx, "u1", time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].PublishedAt)
}

func TestIngestionQueryState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := &types.IngestionQuery{UserID: "u1", URL: "https://feed/a", Layer: "news", NextPollAt: now.Add(-time.Minute)}
	later := &types.IngestionQuery{UserID: "u1", URL: "https://feed/b", Layer: "news", NextPollAt: now.Add(time.Hour)}
	require.NoError(t, store.SaveQuery(ctx, due))
	require.NoError(t, store.SaveQuery(ctx, later))

	got, err := store.DueQueries(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)
	assert.Equal(t, "rss", got[0].Kind)

	q := got[0]
	q.ErrorCount = 2
	q.LastError = "timeout"
	q.NextPollAt = now.Add(4 * time.Minute)
	require.NoError(t, store.UpdateQueryState(ctx, &q))

	got, err = store.DueQueries(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = store.DueQueries(ctx, now.Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].ErrorCount)
	assert.Equal(t, "timeout", got[0].LastError)

	assert.ErrorIs(t, store.UpdateQueryState(ctx, &types.IngestionQuery{ID: "missing"}), storage.ErrNotFound)
}

func TestDBPathFromDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{":memory:", ""},
		{"", ""},
		{"/data/briefing.db", "/data/briefing.db"},
		{"/data/briefing.db?_pragma=foo", "/data/briefing.db"},
		{"file:/data/briefing.db?mode=rwc", "/data/briefing.db"},
		{"file::memory:?cache=shared", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dbPathFromDSN(tt.dsn), tt.dsn)
	}
}
