package rag

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func greekChunks() []Chunk {
	return NewChunker(ChunkingConfig{}, nil, nil).ChunkAll([]Document{
		{ID: "d1", Text: "Alpha only document"},
		{ID: "d2", Text: "Beta only document"},
		{ID: "d3", Text: "Gamma only document"},
	})
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "你", "好", "v2"}, Terms("Hello, World! 你好 v2"))
	assert.Empty(t, Terms(" ,.; "))
}

func TestLexicalRetriever_AlphaTop1(t *testing.T) {
	r := NewLexicalRetriever(DefaultBM25Config(), nil)
	require.NoError(t, r.Index(context.Background(), greekChunks()))

	got, err := r.Retrieve(context.Background(), "Alpha", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].ChunkID)
	assert.Equal(t, "Alpha only document", got[0].Text)
	assert.Equal(t, 1, got[0].Rank)
	assert.Greater(t, got[0].Score, 0.0)
}

func TestLexicalRetriever_OnlyMatchingChunks(t *testing.T) {
	r := NewLexicalRetriever(DefaultBM25Config(), nil)
	require.NoError(t, r.Index(context.Background(), greekChunks()))

	got, err := r.Retrieve(context.Background(), "beta gamma", 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"d2", "d3"}, ChunkIDs(got))

	none, err := r.Retrieve(context.Background(), "delta", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLexicalRetriever_TiesKeepChunkOrder(t *testing.T) {
	r := NewLexicalRetriever(DefaultBM25Config(), nil)
	require.NoError(t, r.Index(context.Background(), greekChunks()))

	got, err := r.Retrieve(context.Background(), "document", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2", "d3"}, ChunkIDs(got))
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].Rank, got[1].Rank, got[2].Rank})
}

func TestLexicalRetriever_TermFrequencyRanks(t *testing.T) {
	chunks := []Chunk{
		{ID: "a", DocID: "a", Text: "apple banana"},
		{ID: "b", DocID: "b", Text: "apple apple apple banana"},
		{ID: "c", DocID: "c", Text: "cherry"},
	}
	r := NewLexicalRetriever(BM25Config{K1: 1.2, B: 0.75}, nil)
	require.NoError(t, r.Index(context.Background(), chunks))

	got, err := r.Retrieve(context.Background(), "apple", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ChunkIDs(got))
}

func TestLexicalRetriever_EmptyIndex(t *testing.T) {
	r := NewLexicalRetriever(DefaultBM25Config(), nil)
	require.NoError(t, r.Index(context.Background(), nil))
	got, err := r.Retrieve(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLexicalRetriever_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewLexicalRetriever(DefaultBM25Config(), nil)
	_, err := r.Retrieve(ctx, "alpha", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHashingEmbedder(t *testing.T) {
	e := NewHashingEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{"alpha beta", "alpha beta", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[1])
	assert.Len(t, vecs[0], 64)

	var norm float64
	for _, v := range vecs[0] {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-9)
	assert.Equal(t, make([]float64, 64), vecs[2])
	assert.Equal(t, 256, NewHashingEmbedder(0).Dimensions())
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2}, []float64{1, 2}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"length mismatch", []float64{1}, []float64{1, 0}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestVectorRetriever_Alpha(t *testing.T) {
	r := NewVectorRetriever(NewHashingEmbedder(4096), nil)
	require.NoError(t, r.Index(context.Background(), greekChunks()))

	got, err := r.Retrieve(context.Background(), "alpha", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].ChunkID)
}

type brokenEmbedder struct{}

func (brokenEmbedder) Dimensions() int { return 1 }
func (brokenEmbedder) Embed(context.Context, []string) ([][]float64, error) {
	return [][]float64{{1}}, nil
}

func TestVectorRetriever_EmbedderCountMismatch(t *testing.T) {
	r := NewVectorRetriever(brokenEmbedder{}, nil)
	err := r.Index(context.Background(), greekChunks())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 vectors for 3 chunks")
}

func TestNormalizeScores(t *testing.T) {
	assert.Equal(t, []float64{0, 1, 0.5}, normalizeScores([]float64{1, 3, 2}))
	assert.Equal(t, []float64{1, 1}, normalizeScores([]float64{2, 2}))
	assert.Empty(t, normalizeScores(nil))
}

func TestHybridRetriever_Alpha(t *testing.T) {
	r := NewHybridRetriever(DefaultHybridConfig(),
		NewLexicalRetriever(DefaultBM25Config(), nil),
		NewVectorRetriever(NewHashingEmbedder(4096), nil), nil)
	require.NoError(t, r.Index(context.Background(), greekChunks()))

	got, err := r.Retrieve(context.Background(), "Alpha", 3)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "d1", got[0].ChunkID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
}

func TestHybridRetriever_LexicalWeightOnly(t *testing.T) {
	r := NewHybridRetriever(HybridConfig{LexicalWeight: 1}, nil, nil, nil)
	require.NoError(t, r.Index(context.Background(), greekChunks()))

	got, err := r.Retrieve(context.Background(), "gamma", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d3", got[0].ChunkID)
	assert.False(t, math.IsNaN(got[0].Score))
}

func TestOverlapReranker(t *testing.T) {
	in := []RetrievedChunk{
		{ChunkID: "c1", Text: "beta", Score: 9, Rank: 1},
		{ChunkID: "c2", Text: "alpha and beta", Score: 5, Rank: 2},
		{ChunkID: "c3", Text: "nothing", Score: 1, Rank: 3},
	}
	out, err := NewOverlapReranker().Rerank(context.Background(), "alpha beta", in)
	require.NoError(t, err)

	assert.Equal(t, []string{"c2", "c1", "c3"}, ChunkIDs(out))
	assert.Equal(t, []float64{1, 0.5, 0}, []float64{out[0].Score, out[1].Score, out[2].Score})
	assert.Equal(t, []int{1, 2, 3}, []int{out[0].Rank, out[1].Rank, out[2].Rank})
	assert.Equal(t, "c1", in[0].ChunkID, "input must not be reordered")
	assert.Equal(t, 9.0, in[0].Score)
}
