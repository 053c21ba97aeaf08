package rag

import (
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/types"
)

// ChunkingStrategy 分块策略
type ChunkingStrategy string

const (
	ChunkingDocument ChunkingStrategy = "document" // 整文档一块（默认）
	ChunkingSentence ChunkingStrategy = "sentence" // 句子边界
	ChunkingFixed    ChunkingStrategy = "fixed"    // 固定 token 窗口
	ChunkingSliding  ChunkingStrategy = "sliding"  // 带重叠的滑动窗口
)

// ChunkingConfig 分块配置
type ChunkingConfig struct {
	Strategy     ChunkingStrategy `json:"strategy"`
	ChunkSize    int              `json:"chunk_size"`    // 窗口大小（tokens）
	ChunkOverlap int              `json:"chunk_overlap"` // 滑动窗口重叠（tokens）
}

// DefaultChunkingConfig 默认不分块
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		Strategy:     ChunkingDocument,
		ChunkSize:    128,
		ChunkOverlap: 32,
	}
}

// Validate 校验配置
func (c ChunkingConfig) Validate() error {
	switch c.Strategy {
	case ChunkingDocument, ChunkingSentence:
		return nil
	case ChunkingFixed, ChunkingSliding:
		if c.ChunkSize <= 0 {
			return types.Errorf(types.ErrInvalidInput, "chunk_size must be positive for %s chunking", c.Strategy)
		}
		if c.Strategy == ChunkingSliding && (c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize) {
			return types.Errorf(types.ErrInvalidInput, "chunk_overlap must be in [0, chunk_size), got %d", c.ChunkOverlap)
		}
		return nil
	default:
		return types.Errorf(types.ErrInvalidInput, "unknown chunking strategy %q", c.Strategy)
	}
}

// Chunker 文档分块器
type Chunker struct {
	config    ChunkingConfig
	tokenizer Tokenizer
	logger    *zap.Logger
}

// NewChunker 创建分块器；tokenizer 为 nil 时使用空白切分
func NewChunker(config ChunkingConfig, tokenizer Tokenizer, logger *zap.Logger) *Chunker {
	if tokenizer == nil {
		tokenizer = SimpleTokenizer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Strategy == "" {
		config.Strategy = ChunkingDocument
	}
	return &Chunker{config: config, tokenizer: tokenizer, logger: logger}
}

// ChunkAll 按文档顺序分块
func (c *Chunker) ChunkAll(docs []Document) []Chunk {
	var out []Chunk
	for _, d := range docs {
		out = append(out, c.Chunk(d)...)
	}
	c.logger.Debug("chunking completed",
		zap.String("strategy", string(c.config.Strategy)),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(out)))
	return out
}

// Chunk 对单个文档分块
func (c *Chunker) Chunk(doc Document) []Chunk {
	var texts []string
	switch c.config.Strategy {
	case ChunkingSentence:
		texts = SplitSentences(doc.Text)
	case ChunkingFixed:
		texts = c.window(doc.Text, c.config.ChunkSize, c.config.ChunkSize)
	case ChunkingSliding:
		step := c.config.ChunkSize - c.config.ChunkOverlap
		if step <= 0 {
			step = 1
		}
		texts = c.window(doc.Text, c.config.ChunkSize, step)
	default:
		return []Chunk{{ID: doc.ID, DocID: doc.ID, Text: doc.Text}}
	}

	chunks := make([]Chunk, 0, len(texts))
	for i, t := range texts {
		chunks = append(chunks, Chunk{
			ID:    doc.ID + "#" + strconv.Itoa(i),
			DocID: doc.ID,
			Text:  t,
			Index: i,
		})
	}
	return chunks
}

// window 以 size 为窗口、step 为步长切分 token；最后一个窗口覆盖到文本末尾
func (c *Chunker) window(text string, size, step int) []string {
	tokens := c.tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	var out []string
	for start := 0; start < len(tokens); start += step {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, c.tokenizer.Join(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return out
}

// SplitSentences 在句末标点（. ! ? 。！？）后切分，去掉首尾空白，丢弃空句
func SplitSentences(text string) []string {
	var (
		out []string
		buf strings.Builder
	)
	runes := []rune(text)
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			out = append(out, s)
		}
		buf.Reset()
	}
	for i, r := range runes {
		buf.WriteRune(r)
		switch r {
		case '。', '！', '？':
			flush()
		case '.', '!', '?':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	flush()
	return out
}
