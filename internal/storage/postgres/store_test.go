package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/internal/storage/postgres"
	"github.com/scrypster/briefing/pkg/types"
)

// postgresTestDSN returns the DSN for the test database.
// If POSTGRES_TEST_DSN is not set, tests are skipped.
func postgresTestDSN(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore connects to the test database and truncates every table.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	store, err := postgres.NewStore(postgresTestDSN(t), nil)
	require.NoError(t, err, "NewStore should succeed")
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.TruncateForTest(context.Background()))
	return store
}

func TestInsertEntity_DuplicateIsNoOp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := &types.KnowledgeEntity{UserID: "u1", EntityType: types.EntityTypeCompany, Name: "Acme", Source: types.SourceExtracted}
	ok, err := store.InsertEntity(ctx, e)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.InsertEntity(ctx, &types.KnowledgeEntity{UserID: "u1", EntityType: types.EntityTypeCompany, Name: "Acme", Source: types.SourceBriefing})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSimilarEntities(t *testing.T) {
	store := newTestStore(t)
	if !store.VectorSearchAvailable() {
		t.Skip("pgvector not installed on the test server")
	}
	ctx := context.Background()

	near := &types.KnowledgeEntity{UserID: "u1", EntityType: types.EntityTypeConcept, Name: "near", Source: types.SourceExtracted, Embedding: []float32{1, 0.1, 0}}
	far := &types.KnowledgeEntity{UserID: "u1", EntityType: types.EntityTypeConcept, Name: "far", Source: types.SourceExtracted, Embedding: []float32{0, 0, 1}}
	other := &types.KnowledgeEntity{UserID: "u1", EntityType: types.EntityTypeConcept, Name: "other-dims", Source: types.SourceExtracted, Embedding: []float32{1, 0}}
	for _, e := range []*types.KnowledgeEntity{near, far, other} {
		_, err := store.InsertEntity(ctx, e)
		require.NoError(t, err)
	}

	got, err := store.SimilarEntities(ctx, "u1", []float32{1, 0, 0}, 0.6, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "near", got[0].Entity.Name)
	assert.Greater(t, got[0].Similarity, 0.9)

	// The same store queried at the other dimension sees only that row.
	got, err = store.SimilarEntities(ctx, "u1", []float32{1, 0}, 0.6, 10)
	require.NoError(t, err, "mixed dimensions must not raise a pgvector error")
	require.Len(t, got, 1)
	assert.Equal(t, "other-dims", got[0].Entity.Name)
}

func TestDeleteEntity_RemovesEdges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := &types.KnowledgeEntity{UserID: "u1", EntityType: types.EntityTypePerson, Name: "Ada", Source: types.SourceExtracted}
	b := &types.KnowledgeEntity{UserID: "u1", EntityType: types.EntityTypeCompany, Name: "Engines", Source: types.SourceExtracted}
	for _, e := range []*types.KnowledgeEntity{a, b} {
		_, err := store.InsertEntity(ctx, e)
		require.NoError(t, err)
	}
	require.NoError(t, store.InsertEdge(ctx, &types.EntityEdge{UserID: "u1", FromEntityID: a.ID, ToEntityID: b.ID, Relation: "works_at"}))

	require.NoError(t, store.DeleteEntity(ctx, a.ID))
	edges, err := store.ListEdges(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, edges)
	assert.ErrorIs(t, store.DeleteEntity(ctx, a.ID), storage.ErrNotFound)
}

func TestProfileUniverseRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &types.UserProfile{UserID: "u1", Name: "Sam", Expertise: []string{"payments"}}
	require.NoError(t, store.SaveProfile(ctx, p))
	got, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"payments"}, got.Expertise)
	assert.Empty(t, got.ImpressList)

	require.NoError(t, store.SaveUniverse(ctx, "u1", &types.ContentUniverse{CoreTopics: []string{"payments"}}))
	u := &types.ContentUniverse{CoreTopics: []string{"open banking"}}
	require.NoError(t, store.SaveUniverse(ctx, "u1", u))
	assert.Equal(t, 2, u.Version)

	latest, err := store.GetUniverse(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"open banking"}, latest.CoreTopics)
}

func TestIngestionBackoffState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	q := &types.IngestionQuery{UserID: "u1", URL: "https://feed", Layer: "news", NextPollAt: now.Add(-time.Second)}
	require.NoError(t, store.SaveQuery(ctx, q))

	due, err := store.DueQueries(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)

	q.ErrorCount = 1
	q.NextPollAt = now.Add(time.Minute)
	require.NoError(t, store.UpdateQueryState(ctx, q))

	due, err = store.DueQueries(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}
