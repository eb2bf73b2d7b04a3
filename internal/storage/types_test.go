package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/briefing/pkg/types"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestRankBySimilarity(t *testing.T) {
	query := []float32{1, 0}
	entities := []types.KnowledgeEntity{
		{Name: "weak", Embedding: []float32{0.3, 0.9539392}},     // ~0.3 similarity
		{Name: "strong", Embedding: []float32{0.9, 0.43588989}}, // ~0.9 similarity
		{Name: "exact", Embedding: []float32{2, 0}},
		{Name: "no-vector"},
	}

	got := RankBySimilarity(entities, query, 0.6, 10)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].Entity.Name)
	assert.Equal(t, "strong", got[1].Entity.Name)
	assert.InDelta(t, 0.9, got[1].Similarity, 1e-3)

	limited := RankBySimilarity(entities, query, 0.6, 1)
	require.Len(t, limited, 1)
	assert.Equal(t, "exact", limited[0].Entity.Name)
}

func TestEmbeddingEncoding(t *testing.T) {
	vec := []float32{0, -1.25, 3.5, float32(math.Pi)}
	decoded, err := DecodeEmbedding(EncodeEmbedding(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)

	assert.Nil(t, EncodeEmbedding(nil))
	empty, err := DecodeEmbedding(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = DecodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}
