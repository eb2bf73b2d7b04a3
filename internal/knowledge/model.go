// Package knowledge maintains the per-user knowledge model: what a user is
// known to already know. The selection agent only reads it, through Lookup.
// Writes go through AddEntities, Reinforce and the Pruner.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/briefing/internal/llm"
	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/pkg/types"
)

// Lookup limits.
const (
	// SnapshotLimit caps the general snapshot returned for an empty query.
	SnapshotLimit = 30

	// SubstringLimit caps substring matches.
	SubstringLimit = 20

	// SimilarityThreshold is the exclusive lower bound for embedding matches.
	SimilarityThreshold = 0.6

	// SimilarityLimit caps embedding matches.
	SimilarityLimit = 10
)

// MatchType tells the caller which strategy produced a lookup result.
type MatchType string

const (
	MatchSubstring MatchType = "substring"
	MatchEmbedding MatchType = "embedding"
	MatchSnapshot  MatchType = "snapshot"
)

// EntityInput is a candidate entity for AddEntities.
type EntityInput struct {
	Name        string           `yaml:"name"`
	EntityType  types.EntityType `yaml:"type"`
	Description string           `yaml:"description"`
	Source      string           `yaml:"source"`
	Confidence  float64          `yaml:"confidence"`
}

// AddResult counts what AddEntities did with its inputs.
type AddResult struct {
	Inserted   int
	Duplicates int
	Suppressed int
	Invalid    int
	Embedded   int
}

// LookupResult is the answer to a knowledge lookup.
type LookupResult struct {
	Query     string
	MatchType MatchType
	Entities  []types.ScoredEntity
}

// Model is the knowledge model for all users.
type Model struct {
	store    storage.KnowledgeStore
	embedder llm.Embedder
	logger   *zap.Logger
	now      func() time.Time
}

// NewModel creates a knowledge model. embedder may be nil, in which case
// entities are stored without vectors and lookups never use the embedding
// fallback.
func NewModel(store storage.KnowledgeStore, embedder llm.Embedder, logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Model{
		store:    store,
		embedder: embedder,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddEntities inserts entities for a user. Pruned name+type pairs are
// skipped, duplicates are no-ops, and embeddings are generated in one batch.
// An embedding failure stores the entities without vectors.
func (m *Model) AddEntities(ctx context.Context, userID string, inputs []EntityInput) (AddResult, error) {
	var (
		res     AddResult
		pending []*types.KnowledgeEntity
	)
	now := m.now()

	for _, in := range inputs {
		name := strings.TrimSpace(in.Name)
		entityType := types.EntityType(strings.ToLower(strings.TrimSpace(string(in.EntityType))))
		if name == "" || !types.IsValidEntityType(string(entityType)) {
			res.Invalid++
			continue
		}

		pruned, err := m.store.IsPruned(ctx, userID, name, entityType)
		if err != nil {
			return res, fmt.Errorf("check pruned %q: %w", name, err)
		}
		if pruned {
			res.Suppressed++
			continue
		}

		source := in.Source
		if source == "" {
			source = types.SourceExtracted
		}
		confidence := in.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = 0.5
		}
		pending = append(pending, &types.KnowledgeEntity{
			UserID:         userID,
			EntityType:     entityType,
			Name:           name,
			Description:    strings.TrimSpace(in.Description),
			Source:         source,
			Confidence:     confidence,
			KnownSince:     now,
			LastReinforced: now,
		})
	}

	res.Embedded = m.embedAll(ctx, pending)

	for _, e := range pending {
		inserted, err := m.store.InsertEntity(ctx, e)
		if err != nil {
			return res, fmt.Errorf("insert entity %q: %w", e.Name, err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Duplicates++
		}
	}

	m.logger.Debug("knowledge entities added",
		zap.String("user_id", userID),
		zap.Int("inserted", res.Inserted),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("suppressed", res.Suppressed),
		zap.Int("invalid", res.Invalid),
	)
	return res, nil
}

// embedAll attaches vectors to entities in one batch call and returns how
// many were embedded. Failures leave every vector nil.
func (m *Model) embedAll(ctx context.Context, entities []*types.KnowledgeEntity) int {
	if m.embedder == nil || len(entities) == 0 {
		return 0
	}
	texts := make([]string, len(entities))
	for i, e := range entities {
		texts[i] = EntityText(e.Name, e.Description)
	}
	vectors, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		m.logger.Warn("embedding failed, storing entities without vectors", zap.Error(err))
		return 0
	}
	if len(vectors) != len(entities) {
		m.logger.Warn("embedding count mismatch, storing entities without vectors",
			zap.Int("want", len(entities)), zap.Int("got", len(vectors)))
		return 0
	}
	n := 0
	for i, vec := range vectors {
		if len(vec) > 0 {
			entities[i].Embedding = vec
			n++
		}
	}
	return n
}

// EntityText is the text embedded for an entity.
func EntityText(name, description string) string {
	if description == "" {
		return name
	}
	return name + ": " + description
}

// Reinforce marks an entity as recently confirmed.
func (m *Model) Reinforce(ctx context.Context, entityID string) error {
	if err := m.store.ReinforceEntity(ctx, entityID, m.now()); err != nil {
		return fmt.Errorf("reinforce %s: %w", entityID, err)
	}
	return nil
}

// Lookup answers "does the user already know about X".
//
// An empty query returns a snapshot of at most SnapshotLimit entities and
// never embeds. Otherwise substring matches on name and description win; if
// there are none, the query is embedded and entities with cosine similarity
// above SimilarityThreshold are returned, best first. Embedding failures
// degrade to an empty result.
func (m *Model) Lookup(ctx context.Context, userID, query string) (*LookupResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		entities, err := m.store.ListEntities(ctx, userID, storage.EntityListOptions{Limit: SnapshotLimit})
		if err != nil {
			return nil, fmt.Errorf("knowledge snapshot: %w", err)
		}
		return &LookupResult{MatchType: MatchSnapshot, Entities: unscored(entities)}, nil
	}

	matches, err := m.store.SearchEntities(ctx, userID, query, SubstringLimit)
	if err != nil {
		return nil, fmt.Errorf("knowledge substring search: %w", err)
	}
	if len(matches) > 0 || m.embedder == nil {
		return &LookupResult{Query: query, MatchType: MatchSubstring, Entities: unscored(matches)}, nil
	}

	scored, err := m.similar(ctx, userID, query)
	if err != nil {
		return nil, err
	}
	return &LookupResult{Query: query, MatchType: MatchEmbedding, Entities: scored}, nil
}

func (m *Model) similar(ctx context.Context, userID, query string) ([]types.ScoredEntity, error) {
	vectors, err := m.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) != 1 || len(vectors[0]) == 0 {
		m.logger.Warn("query embedding failed, returning no embedding matches",
			zap.String("user_id", userID), zap.Error(err))
		return nil, nil
	}
	vec := vectors[0]

	if searcher, ok := m.store.(storage.SimilaritySearcher); ok {
		scored, err := searcher.SimilarEntities(ctx, userID, vec, SimilarityThreshold, SimilarityLimit)
		if err == nil {
			return scored, nil
		}
		if !errors.Is(err, storage.ErrVectorSearchUnavailable) {
			return nil, fmt.Errorf("knowledge vector search: %w", err)
		}
	}

	entities, err := m.store.ListEntities(ctx, userID, storage.EntityListOptions{WithEmbeddingOnly: true})
	if err != nil {
		return nil, fmt.Errorf("knowledge embedded entities: %w", err)
	}
	return storage.RankBySimilarity(entities, vec, SimilarityThreshold, SimilarityLimit), nil
}

func unscored(entities []types.KnowledgeEntity) []types.ScoredEntity {
	out := make([]types.ScoredEntity, len(entities))
	for i, e := range entities {
		out[i] = types.ScoredEntity{Entity: e}
	}
	return out
}
