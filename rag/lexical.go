package rag

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// Retriever 检索器：先 Index 再 Retrieve。每次管线调用使用新的实例。
type Retriever interface {
	Name() string
	Index(ctx context.Context, chunks []Chunk) error
	Retrieve(ctx context.Context, query string, topK int) ([]RetrievedChunk, error)
}

// BM25Config BM25 参数
type BM25Config struct {
	K1 float64 `json:"k1"` // 词频饱和 (1.2-2.0)
	B  float64 `json:"b"`  // 长度归一化 (0.75)
}

// DefaultBM25Config 返回默认 BM25 参数
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.5, B: 0.75}
}

type posting struct {
	chunk int
	tf    int
}

// LexicalRetriever 基于倒排索引的 BM25 检索
type LexicalRetriever struct {
	config BM25Config
	chunks []Chunk

	index     map[string][]posting // term -> postings（按块顺序）
	docLens   []int
	avgDocLen float64
	idf       map[string]float64

	logger *zap.Logger
}

// NewLexicalRetriever 创建词法检索器
func NewLexicalRetriever(config BM25Config, logger *zap.Logger) *LexicalRetriever {
	if config.K1 <= 0 {
		config.K1 = DefaultBM25Config().K1
	}
	if config.B < 0 || config.B > 1 {
		config.B = DefaultBM25Config().B
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LexicalRetriever{
		config: config,
		index:  make(map[string][]posting),
		idf:    make(map[string]float64),
		logger: logger.With(zap.String("component", "lexical_retriever")),
	}
}

func (r *LexicalRetriever) Name() string { return "lexical" }

// Index 构建倒排索引与 IDF
func (r *LexicalRetriever) Index(_ context.Context, chunks []Chunk) error {
	r.chunks = chunks
	r.index = make(map[string][]posting)
	r.idf = make(map[string]float64)
	r.docLens = make([]int, len(chunks))

	total := 0
	for i, c := range chunks {
		terms := Terms(c.Text)
		r.docLens[i] = len(terms)
		total += len(terms)

		tf := make(map[string]int)
		var order []string
		for _, t := range terms {
			if tf[t] == 0 {
				order = append(order, t)
			}
			tf[t]++
		}
		for _, t := range order {
			r.index[t] = append(r.index[t], posting{chunk: i, tf: tf[t]})
		}
	}

	if len(chunks) > 0 {
		r.avgDocLen = float64(total) / float64(len(chunks))
	}

	n := float64(len(chunks))
	for term, postings := range r.index {
		df := float64(len(postings))
		r.idf[term] = math.Log((n-df+0.5)/(df+0.5) + 1.0)
	}

	r.logger.Debug("chunks indexed",
		zap.Int("chunks", len(chunks)),
		zap.Int("terms", len(r.index)))
	return nil
}

// Scores 返回与块顺序对齐的 BM25 分数
func (r *LexicalRetriever) Scores(query string) []float64 {
	scores := make([]float64, len(r.chunks))
	if r.avgDocLen == 0 {
		return scores
	}
	seen := make(map[string]bool)
	for _, q := range Terms(query) {
		if seen[q] {
			continue
		}
		seen[q] = true
		idf := r.idf[q]
		for _, p := range r.index[q] {
			tf := float64(p.tf)
			docLen := float64(r.docLens[p.chunk])
			numerator := tf * (r.config.K1 + 1.0)
			denominator := tf + r.config.K1*(1.0-r.config.B+r.config.B*(docLen/r.avgDocLen))
			scores[p.chunk] += idf * (numerator / denominator)
		}
	}
	return scores
}

// Retrieve 返回得分大于 0 的前 topK 个块；同分按块顺序
func (r *LexicalRetriever) Retrieve(ctx context.Context, query string, topK int) ([]RetrievedChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores := r.Scores(query)
	return rankChunks(r.chunks, scores, topK, func(s float64) bool { return s > 0 }), nil
}

// Terms 词法切分：转小写，按字母/数字连续段切分；CJK 字符单独成词
func Terms(text string) []string {
	var (
		terms []string
		cur   strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			terms = append(terms, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case isCJK(r):
			flush()
			terms = append(terms, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return terms
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// rankChunks 按分数降序取前 topK，同分保持块顺序；keep 为 nil 时保留全部
func rankChunks(chunks []Chunk, scores []float64, topK int, keep func(float64) bool) []RetrievedChunk {
	idx := make([]int, 0, len(chunks))
	for i := range chunks {
		if keep == nil || keep(scores[i]) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	if topK > 0 && len(idx) > topK {
		idx = idx[:topK]
	}

	out := make([]RetrievedChunk, len(idx))
	for rank, i := range idx {
		out[rank] = RetrievedChunk{
			ChunkID: chunks[i].ID,
			DocID:   chunks[i].DocID,
			Text:    chunks[i].Text,
			Score:   scores[i],
			Rank:    rank + 1,
		}
	}
	return out
}
