package tokenizer

import (
	"strings"
	"sync"
)

// Tokenizer token 计数与切分接口
type Tokenizer interface {
	// CountTokens 返回文本的 token 数
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的 token 数，含每条消息的角色开销
	CountMessages(messages []Message) (int, error)

	// Split 把文本切成 token 片段；片段按顺序拼接可还原文本（空白可能被规整）
	Split(text string) ([]string, error)

	// Name 返回分词器名称
	Name() string
}

// Message 轻量消息结构，避免与 llm 包循环依赖
type Message struct {
	Role    string
	Content string
}

var (
	registered   = make(map[string]Tokenizer)
	registeredMu sync.RWMutex
)

// Register 为模型名注册分词器
func Register(model string, t Tokenizer) {
	registeredMu.Lock()
	defer registeredMu.Unlock()
	registered[model] = t
}

// ForModel 返回模型对应的分词器：先精确匹配，再取最长前缀匹配，都没有时回退到估算器。
func ForModel(model string) Tokenizer {
	registeredMu.RLock()
	defer registeredMu.RUnlock()

	if t, ok := registered[model]; ok {
		return t
	}
	var (
		best    Tokenizer
		bestLen int
	)
	for prefix, t := range registered {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = t, len(prefix)
		}
	}
	if best != nil {
		return best
	}
	return NewEstimator()
}
