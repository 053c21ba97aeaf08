package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// 模型前缀 -> tiktoken 编码
var modelEncodings = map[string]string{
	"gpt-4o":                 "o200k_base",
	"gpt-4.1":                "o200k_base",
	"gpt-4":                  "cl100k_base",
	"gpt-3.5-turbo":          "cl100k_base",
	"text-embedding-3-large": "cl100k_base",
	"text-embedding-3-small": "cl100k_base",
}

const defaultEncoding = "cl100k_base"

// Tiktoken 基于 tiktoken 的精确分词器。编码数据在首次使用时加载。
type Tiktoken struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// NewTiktoken 按模型名选择编码，未知模型使用 cl100k_base
func NewTiktoken(model string) *Tiktoken {
	encoding := defaultEncoding
	bestLen := 0
	for prefix, e := range modelEncodings {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			encoding, bestLen = e, len(prefix)
		}
	}
	return &Tiktoken{encoding: encoding}
}

// NewTiktokenWithEncoding 直接指定编码名
func NewTiktokenWithEncoding(encoding string) *Tiktoken {
	return &Tiktoken{encoding: encoding}
}

func (t *Tiktoken) load() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("load tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *Tiktoken) CountTokens(text string) (int, error) {
	if err := t.load(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *Tiktoken) CountMessages(messages []Message) (int, error) {
	if err := t.load(); err != nil {
		return 0, err
	}
	total := 3 // 回复起始开销
	for _, m := range messages {
		total += 4 + len(t.enc.Encode(m.Role, nil, nil)) + len(t.enc.Encode(m.Content, nil, nil))
	}
	return total, nil
}

// Split 逐个 token 解码，片段拼接即原文
func (t *Tiktoken) Split(text string) ([]string, error) {
	if err := t.load(); err != nil {
		return nil, err
	}
	ids := t.enc.Encode(text, nil, nil)
	pieces := make([]string, len(ids))
	for i, id := range ids {
		pieces[i] = t.enc.Decode([]int{id})
	}
	return pieces, nil
}

func (t *Tiktoken) Name() string { return "tiktoken[" + t.encoding + "]" }

// RegisterOpenAI 为已知 OpenAI 模型前缀注册 tiktoken 分词器
func RegisterOpenAI() {
	for prefix, encoding := range modelEncodings {
		Register(prefix, NewTiktokenWithEncoding(encoding))
	}
}
