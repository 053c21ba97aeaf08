package rag

import (
	"strings"

	"go.uber.org/zap"

	lltok "github.com/BaSui01/evalflow/llm/tokenizer"
)

// Tokenizer 分块使用的切分接口。Join(Tokenize(s)) 应还原 s（空白可规整）。
type Tokenizer interface {
	Tokenize(text string) []string
	Join(tokens []string) string
}

// SimpleTokenizer 按空白切分，以单个空格拼接
type SimpleTokenizer struct{}

func (SimpleTokenizer) Tokenize(text string) []string { return strings.Fields(text) }

func (SimpleTokenizer) Join(tokens []string) string { return strings.Join(tokens, " ") }

// LLMTokenizerAdapter 将 llm/tokenizer.Tokenizer 适配为 rag.Tokenizer。
// 底层分词失败时回退到空白切分并记录警告。
type LLMTokenizerAdapter struct {
	inner    lltok.Tokenizer
	fallback SimpleTokenizer
	// concat 为 true 时片段直接拼接（tiktoken 片段自带空白）
	concat bool
	logger *zap.Logger
}

// NewLLMTokenizerAdapter 创建适配器
func NewLLMTokenizerAdapter(inner lltok.Tokenizer, concat bool, logger *zap.Logger) *LLMTokenizerAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMTokenizerAdapter{inner: inner, concat: concat, logger: logger}
}

func (a *LLMTokenizerAdapter) Tokenize(text string) []string {
	pieces, err := a.inner.Split(text)
	if err != nil {
		a.logger.Warn("tokenizer split failed, falling back to whitespace",
			zap.String("tokenizer", a.inner.Name()),
			zap.Error(err))
		return a.fallback.Tokenize(text)
	}
	return pieces
}

func (a *LLMTokenizerAdapter) Join(tokens []string) string {
	if a.concat {
		return strings.TrimSpace(strings.Join(tokens, ""))
	}
	return strings.Join(tokens, " ")
}

// NewTiktokenAdapter 基于 tiktoken 的适配器；model 决定编码（如 "gpt-4o"）
func NewTiktokenAdapter(model string, logger *zap.Logger) Tokenizer {
	return NewLLMTokenizerAdapter(lltok.NewTiktoken(model), true, logger)
}

// NewEstimatorAdapter 基于 CJK 感知估算器的适配器，不需要下载编码数据
func NewEstimatorAdapter(logger *zap.Logger) Tokenizer {
	return NewLLMTokenizerAdapter(lltok.NewEstimator(), false, logger)
}

// NewTokenizer 按名称创建分词器：simple（默认）、estimator、tiktoken[:model]
func NewTokenizer(name string, logger *zap.Logger) Tokenizer {
	kind, model, _ := strings.Cut(name, ":")
	switch kind {
	case "tiktoken":
		if model == "" {
			model = "gpt-4o"
		}
		return NewTiktokenAdapter(model, logger)
	case "estimator":
		return NewEstimatorAdapter(logger)
	default:
		return SimpleTokenizer{}
	}
}
