package rag

import (
	"context"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// Embedder 文本向量化接口
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Dimensions() int
}

// HashingEmbedder 特征哈希向量化：每个词项哈希到固定维度并带符号累加，
// 结果做 L2 归一化。无需模型，输出完全确定。
type HashingEmbedder struct {
	dims int
}

// NewHashingEmbedder 创建哈希向量化器；dims <= 0 时使用 256
func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashingEmbedder{dims: dims}
}

func (e *HashingEmbedder) Dimensions() int { return e.dims }

// Embed 向量化一批文本
func (e *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *HashingEmbedder) embed(text string) []float64 {
	vec := make([]float64, e.dims)
	for _, term := range Terms(text) {
		h := xxhash.Sum64String(term)
		slot := int(h % uint64(e.dims))
		if h>>63 == 1 {
			vec[slot]--
		} else {
			vec[slot]++
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// VectorRetriever 余弦相似度检索（内存，无外部向量库）
type VectorRetriever struct {
	embedder   Embedder
	chunks     []Chunk
	embeddings [][]float64
	logger     *zap.Logger
}

// NewVectorRetriever 创建向量检索器；embedder 为 nil 时使用 HashingEmbedder
func NewVectorRetriever(embedder Embedder, logger *zap.Logger) *VectorRetriever {
	if embedder == nil {
		embedder = NewHashingEmbedder(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorRetriever{
		embedder: embedder,
		logger:   logger.With(zap.String("component", "vector_retriever")),
	}
}

func (r *VectorRetriever) Name() string { return "vector" }

// Index 计算所有块的向量
func (r *VectorRetriever) Index(ctx context.Context, chunks []Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}
	r.chunks = chunks
	r.embeddings = embeddings
	r.logger.Debug("chunks embedded",
		zap.Int("chunks", len(chunks)),
		zap.Int("dimensions", r.embedder.Dimensions()))
	return nil
}

// Scores 返回与块顺序对齐的余弦相似度
func (r *VectorRetriever) Scores(ctx context.Context, query string) ([]float64, error) {
	qv, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qv) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for query", len(qv))
	}
	scores := make([]float64, len(r.chunks))
	for i, emb := range r.embeddings {
		scores[i] = CosineSimilarity(qv[0], emb)
	}
	return scores, nil
}

// Retrieve 返回相似度大于 0 的前 topK 个块
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, topK int) ([]RetrievedChunk, error) {
	scores, err := r.Scores(ctx, query)
	if err != nil {
		return nil, err
	}
	return rankChunks(r.chunks, scores, topK, func(s float64) bool { return s > 0 }), nil
}

// CosineSimilarity 计算余弦相似度；维度不一致或零向量返回 0
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
