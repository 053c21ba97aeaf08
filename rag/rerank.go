package rag

import (
	"context"
	"sort"
)

// Reranker 重排序接口：消费并重新产出同形状的块，重新计算 rank
type Reranker interface {
	Name() string
	Rerank(ctx context.Context, query string, chunks []RetrievedChunk) ([]RetrievedChunk, error)
}

// OverlapReranker 按查询词覆盖率重排序（命中的查询词 / 查询词总数）。
// 同分时保持检索阶段的相对顺序。
type OverlapReranker struct{}

// NewOverlapReranker 创建重排序器
func NewOverlapReranker() *OverlapReranker { return &OverlapReranker{} }

func (*OverlapReranker) Name() string { return "overlap" }

// Rerank 重排序，不修改入参
func (*OverlapReranker) Rerank(ctx context.Context, query string, chunks []RetrievedChunk) ([]RetrievedChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]RetrievedChunk, len(chunks))
	copy(out, chunks)

	queryTerms := uniqueTerms(query)
	for i := range out {
		out[i].Score = coverage(queryTerms, out[i].Text)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Score > out[b].Score
	})
	rerankAll(out)
	return out, nil
}

func uniqueTerms(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range Terms(text) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func coverage(queryTerms []string, content string) float64 {
	if len(queryTerms) == 0 {
		return 0.0
	}
	contentTerms := make(map[string]bool)
	for _, t := range Terms(content) {
		contentTerms[t] = true
	}
	matched := 0
	for _, q := range queryTerms {
		if contentTerms[q] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}
