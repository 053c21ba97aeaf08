package rag

import (
	"context"
	"strconv"
	"strings"
)

// GenerateRequest 生成请求
type GenerateRequest struct {
	Query  string
	Chunks []RetrievedChunk
}

// GenerateResult 生成结果及调用统计
type GenerateResult struct {
	Generation Generation
	Attempts   int
	TokensUsed int
	Cost       float64
}

// Generator 答案生成策略
type Generator interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// SentenceID 返回第 n 个句子的 ID（从 1 开始）：s1, s2, ...
func SentenceID(n int) string {
	return "s" + strconv.Itoa(n)
}

// TemplateGenerator 确定性模板生成：每个块一句话并引用自身，
// 答案为块文本以空格拼接。
type TemplateGenerator struct{}

// NewTemplateGenerator 创建模板生成器
func NewTemplateGenerator() *TemplateGenerator { return &TemplateGenerator{} }

func (*TemplateGenerator) Name() string { return "template" }

func (*TemplateGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gen := Generation{Sentences: make([]Sentence, 0, len(req.Chunks))}
	texts := make([]string, 0, len(req.Chunks))
	for i, c := range req.Chunks {
		gen.Sentences = append(gen.Sentences, Sentence{
			SentenceID: SentenceID(i + 1),
			Text:       c.Text,
			Citations:  []Citation{{ChunkID: c.ChunkID}},
		})
		texts = append(texts, c.Text)
	}
	gen.Answer = strings.Join(texts, " ")
	return &GenerateResult{Generation: gen, Attempts: 1}, nil
}
