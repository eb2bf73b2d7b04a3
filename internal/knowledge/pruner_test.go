package knowledge_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/briefing/internal/knowledge"
	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/internal/storage/sqlite"
	"github.com/scrypster/briefing/pkg/types"
)

func seedPruneUser(t *testing.T, store *sqlite.Store, inputs []knowledge.EntityInput) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveProfile(ctx, &types.UserProfile{
		UserID: "u1", Name: "Sam", Role: "Head of Payments", Company: "Acme Bank",
		Expertise: []string{"payments", "open banking"},
	}))
	_, err := knowledge.NewModel(store, nil, nil).AddEntities(ctx, "u1", inputs)
	require.NoError(t, err)
}

func TestPrune_RemovesAndSuppresses(t *testing.T) {
	store := newTestStore(t)
	seedPruneUser(t, store, []knowledge.EntityInput{
		{Name: "Email", EntityType: types.EntityTypeConcept},
		{Name: "ISO 20022", EntityType: types.EntityTypeTerm},
		{Name: "Payments", EntityType: types.EntityTypeConcept, Source: types.SourceProfileDerived},
	})
	ctx := context.Background()

	all, err := store.ListEntities(ctx, "u1", storage.EntityListOptions{})
	require.NoError(t, err)
	var emailID, isoID string
	for _, e := range all {
		switch e.Name {
		case "Email":
			emailID = e.ID
		case "ISO 20022":
			isoID = e.ID
		}
	}
	require.NoError(t, store.InsertEdge(ctx, &types.EntityEdge{UserID: "u1", FromEntityID: emailID, ToEntityID: isoID, Relation: "related_to"}))

	chat := &scriptedChat{responses: []string{
		"```json\n{\"remove\":[{\"name\":\"email\",\"type\":\"concept\",\"reason\":\"too generic\"},{\"name\":\"Payments\",\"type\":\"concept\",\"reason\":\"generic\"}]}\n```",
	}}
	report, err := knowledge.NewPruner(store, store, chat, nil).Prune(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Evaluated)
	assert.Equal(t, 1, report.Batches)
	require.Len(t, report.Removed, 1, "exempt entities cannot be removed even if named")
	assert.Equal(t, "Email", report.Removed[0].Name)

	require.Len(t, chat.prompts, 1)
	assert.NotContains(t, chat.prompts[0], `"Payments"`, "exempt entities are never batched")
	assert.Contains(t, chat.prompts[0], "ISO 20022")
	assert.Contains(t, chat.prompts[0], "Head of Payments")

	edges, err := store.ListEdges(ctx, isoID)
	require.NoError(t, err)
	assert.Empty(t, edges)

	pruned, err := store.IsPruned(ctx, "u1", "EMAIL", types.EntityTypeConcept)
	require.NoError(t, err)
	assert.True(t, pruned)

	res, err := knowledge.NewModel(store, nil, nil).AddEntities(ctx, "u1", []knowledge.EntityInput{
		{Name: "Email", EntityType: types.EntityTypeConcept},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Suppressed, "reseeding a pruned entity is skipped")
}

func TestPrune_FailedBatchKeepsEverything(t *testing.T) {
	store := newTestStore(t)
	inputs := make([]knowledge.EntityInput, 120)
	for i := range inputs {
		inputs[i] = knowledge.EntityInput{Name: fmt.Sprintf("Term %03d", i), EntityType: types.EntityTypeTerm}
	}
	seedPruneUser(t, store, inputs)
	ctx := context.Background()

	chat := &scriptedChat{
		responses: []string{
			`{"remove":[{"name":"Term 000","type":"term","reason":"generic"}]}`,
			"",
			"I think you should remove Term 100.",
		},
		errs: []error{nil, errors.New("timeout")},
	}
	report, err := knowledge.NewPruner(store, store, chat, nil).Prune(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 120, report.Evaluated)
	assert.Equal(t, 3, report.Batches, "batches of 50")
	assert.Equal(t, 2, report.FailedBatches)
	assert.Len(t, report.Removed, 1)

	remaining, err := store.ListEntities(ctx, "u1", storage.EntityListOptions{})
	require.NoError(t, err)
	assert.Len(t, remaining, 119)
}

func TestPrune_IgnoresRemovalsOutsideBatch(t *testing.T) {
	store := newTestStore(t)
	seedPruneUser(t, store, []knowledge.EntityInput{
		{Name: "Stripe", EntityType: types.EntityTypeCompany},
	})

	chat := &scriptedChat{responses: []string{
		`{"remove":[{"name":"Stripe","type":"product","reason":"wrong type"},{"name":"Unknown","reason":"x"}]}`,
	}}
	report, err := knowledge.NewPruner(store, store, chat, nil).Prune(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, report.Removed)
}

func TestPrune_DuplicateRemovalDoesNotAbortLaterBatches(t *testing.T) {
	store := newTestStore(t)
	inputs := make([]knowledge.EntityInput, 60)
	for i := range inputs {
		inputs[i] = knowledge.EntityInput{Name: fmt.Sprintf("E%02d", i), EntityType: types.EntityTypeTerm}
	}
	seedPruneUser(t, store, inputs)
	ctx := context.Background()

	chat := &scriptedChat{responses: []string{
		`{"remove":[{"name":"E00","type":"term","reason":"generic"},{"name":"e00","reason":"generic again"}]}`,
		`{"remove":[{"name":"E55","type":"term","reason":"off-domain"}]}`,
	}}
	report, err := knowledge.NewPruner(store, store, chat, nil).Prune(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Batches)
	assert.Len(t, chat.prompts, 2, "second batch is still judged")
	require.Len(t, report.Removed, 2)
	assert.Equal(t, "E00", report.Removed[0].Name)
	assert.Equal(t, "E55", report.Removed[1].Name)

	remaining, err := store.ListEntities(ctx, "u1", storage.EntityListOptions{})
	require.NoError(t, err)
	assert.Len(t, remaining, 58)
}

// failingKnowledgeStore overrides selected writes of a real store.
type failingKnowledgeStore struct {
	*sqlite.Store
	recordErr error
	deleteErr error
}

func (f *failingKnowledgeStore) RecordPruned(ctx context.Context, p *types.PrunedEntity) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	return f.Store.RecordPruned(ctx, p)
}

func (f *failingKnowledgeStore) DeleteEntity(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Store.DeleteEntity(ctx, id)
}

func TestPrune_SuppressionFailureKeepsEntity(t *testing.T) {
	store := newTestStore(t)
	seedPruneUser(t, store, []knowledge.EntityInput{{Name: "Email", EntityType: types.EntityTypeConcept}})
	ctx := context.Background()

	failing := &failingKnowledgeStore{Store: store, recordErr: errors.New("disk full")}
	chat := &scriptedChat{responses: []string{`{"remove":[{"name":"Email","reason":"too generic"}]}`}}
	_, err := knowledge.NewPruner(failing, store, chat, nil).Prune(ctx, "u1")
	require.ErrorContains(t, err, "disk full")

	remaining, err := store.ListEntities(ctx, "u1", storage.EntityListOptions{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1, "entity is not deleted without its suppression row")
}

func TestPrune_AlreadyDeletedEntityCountsAsRemoved(t *testing.T) {
	store := newTestStore(t)
	seedPruneUser(t, store, []knowledge.EntityInput{{Name: "Email", EntityType: types.EntityTypeConcept}})
	ctx := context.Background()

	failing := &failingKnowledgeStore{Store: store, deleteErr: fmt.Errorf("delete: %w", storage.ErrNotFound)}
	chat := &scriptedChat{responses: []string{`{"remove":[{"name":"Email","reason":"too generic"}]}`}}
	report, err := knowledge.NewPruner(failing, store, chat, nil).Prune(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, report.Removed, 1)

	pruned, err := store.IsPruned(ctx, "u1", "email", types.EntityTypeConcept)
	require.NoError(t, err)
	assert.True(t, pruned)
}

func TestPrune_MissingProfile(t *testing.T) {
	store := newTestStore(t)
	_, err := knowledge.NewPruner(store, store, &scriptedChat{}, nil).Prune(context.Background(), "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPrunePrompt(t *testing.T) {
	prompt, err := knowledge.PrunePrompt(
		&types.UserProfile{Role: "CFO", Company: "Acme", Expertise: []string{"treasury"}},
		[]types.KnowledgeEntity{{Name: "Liquidity", EntityType: types.EntityTypeConcept, Description: "cash on hand"}},
	)
	require.NoError(t, err)
	assert.True(t, strings.Contains(prompt, `"name": "Liquidity"`))
	assert.Contains(t, prompt, "too generic")
	assert.Contains(t, prompt, "treasury")
}
