package rag

import (
	"context"
	"math"

	"go.uber.org/zap"
)

// HybridConfig 混合检索权重
type HybridConfig struct {
	LexicalWeight float64 `json:"lexical_weight"`
	VectorWeight  float64 `json:"vector_weight"`
}

// DefaultHybridConfig 默认各占一半
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{LexicalWeight: 0.5, VectorWeight: 0.5}
}

// HybridRetriever 线性组合词法分数与向量分数，两路分数先做 Min-Max 归一化
type HybridRetriever struct {
	config  HybridConfig
	lexical *LexicalRetriever
	vector  *VectorRetriever
	chunks  []Chunk
	logger  *zap.Logger
}

// NewHybridRetriever 创建混合检索器
func NewHybridRetriever(config HybridConfig, lexical *LexicalRetriever, vector *VectorRetriever, logger *zap.Logger) *HybridRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lexical == nil {
		lexical = NewLexicalRetriever(DefaultBM25Config(), logger)
	}
	if vector == nil {
		vector = NewVectorRetriever(nil, logger)
	}
	return &HybridRetriever{
		config:  config,
		lexical: lexical,
		vector:  vector,
		logger:  logger.With(zap.String("component", "hybrid_retriever")),
	}
}

func (r *HybridRetriever) Name() string { return "hybrid" }

// Index 同时建立两路索引
func (r *HybridRetriever) Index(ctx context.Context, chunks []Chunk) error {
	if err := r.lexical.Index(ctx, chunks); err != nil {
		return err
	}
	if err := r.vector.Index(ctx, chunks); err != nil {
		return err
	}
	r.chunks = chunks
	return nil
}

// Retrieve 混合检索：只要任一路原始分数大于 0 即为候选
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, topK int) ([]RetrievedChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lex := r.lexical.Scores(query)
	vec, err := r.vector.Scores(ctx, query)
	if err != nil {
		return nil, err
	}

	candidate := make([]bool, len(r.chunks))
	for i := range r.chunks {
		candidate[i] = lex[i] > 0 || vec[i] > 0
	}

	lexN := normalizeScores(lex)
	vecN := normalizeScores(vec)
	combined := make([]float64, len(r.chunks))
	for i := range combined {
		if !candidate[i] {
			combined[i] = math.Inf(-1)
			continue
		}
		combined[i] = lexN[i]*r.config.LexicalWeight + vecN[i]*r.config.VectorWeight
	}

	results := rankChunks(r.chunks, combined, topK, func(s float64) bool { return !math.IsInf(s, -1) })
	r.logger.Debug("hybrid retrieval completed",
		zap.Int("candidates", len(results)),
		zap.Float64("lexical_weight", r.config.LexicalWeight),
		zap.Float64("vector_weight", r.config.VectorWeight))
	return results, nil
}

// normalizeScores Min-Max 归一化；全部相同时归一为 1
func normalizeScores(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	minScore, maxScore := math.MaxFloat64, -math.MaxFloat64
	for _, s := range scores {
		minScore = math.Min(minScore, s)
		maxScore = math.Max(maxScore, s)
	}
	span := maxScore - minScore
	for i, s := range scores {
		if span == 0 {
			out[i] = 1.0
		} else {
			out[i] = (s - minScore) / span
		}
	}
	return out
}
