package storage

import (
	"errors"
	"math"
	"sort"

	"github.com/scrypster/briefing/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrVectorSearchUnavailable indicates that the backend cannot rank by
	// vector similarity right now.
	ErrVectorSearchUnavailable = errors.New("vector search unavailable")
)

// EntityListOptions narrows ListEntities.
type EntityListOptions struct {
	// Limit caps the result size. Zero means no limit.
	Limit int

	// ExcludeSources drops entities whose source is in the list.
	ExcludeSources []string

	// WithEmbeddingOnly keeps only entities that carry an embedding.
	WithEmbeddingOnly bool
}

// CosineSimilarity computes cosine similarity between two equal-length vectors.
// Returns 0 if either vector has zero magnitude or lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RankBySimilarity scores entities against vec in process and keeps those
// strictly above minSimilarity, best first, at most limit.
func RankBySimilarity(entities []types.KnowledgeEntity, vec []float32, minSimilarity float64, limit int) []types.ScoredEntity {
	var scored []types.ScoredEntity
	for _, e := range entities {
		if !e.HasEmbedding() {
			continue
		}
		sim := CosineSimilarity(vec, e.Embedding)
		if sim > minSimilarity {
			scored = append(scored, types.ScoredEntity{Entity: e, Similarity: sim})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
