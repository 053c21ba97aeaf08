package rag

import (
	"strings"

	"github.com/BaSui01/evalflow/types"
)

// Document 待检索的原始文档
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Chunk 文档块。整文档块的 ID 即文档 ID，其余为 "<docID>#<n>"。
type Chunk struct {
	ID    string `json:"id"`
	DocID string `json:"doc_id"`
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// RetrievedChunk 检索 / 重排输出的统一形状
type RetrievedChunk struct {
	ChunkID string  `json:"chunk_id"`
	DocID   string  `json:"doc_id,omitempty"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// Citation 句子引用的块
type Citation struct {
	ChunkID string `json:"chunk_id"`
}

// Sentence 生成答案中的一句话
type Sentence struct {
	SentenceID string     `json:"sentence_id"`
	Text       string     `json:"text"`
	Citations  []Citation `json:"citations"`
}

// Generation 生成结果
type Generation struct {
	Answer    string     `json:"answer"`
	Sentences []Sentence `json:"sentences"`
}

// Input RAG 任务输入
type Input struct {
	Query     string     `json:"query"`
	Documents []Document `json:"documents"`
	TopK      int        `json:"top_k,omitempty"`
}

// Validate 校验输入
func (in *Input) Validate() error {
	if strings.TrimSpace(in.Query) == "" {
		return types.NewError(types.ErrInvalidInput, "rag input requires a non-empty query")
	}
	if len(in.Documents) == 0 {
		return types.NewError(types.ErrInvalidInput, "rag input requires at least one document")
	}
	seen := make(map[string]struct{}, len(in.Documents))
	for i, d := range in.Documents {
		if d.ID == "" {
			return types.Errorf(types.ErrInvalidInput, "document %d has no id", i)
		}
		if _, dup := seen[d.ID]; dup {
			return types.Errorf(types.ErrInvalidInput, "duplicate document id %q", d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	if in.TopK < 0 {
		return types.Errorf(types.ErrInvalidInput, "top_k must be positive, got %d", in.TopK)
	}
	return nil
}

// DecodeInput 把任务输入 map 解码为 Input 并校验
func DecodeInput(raw map[string]any) (*Input, error) {
	var in Input
	if err := types.DecodeInto(raw, &in); err != nil {
		return nil, types.NewError(types.ErrInvalidInput, "decode rag input").WithCause(err)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &in, nil
}

// ChunkIDs 返回检索结果的块 ID 列表（保持顺序）
func ChunkIDs(chunks []RetrievedChunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
	}
	return ids
}

// rerankAll 按当前顺序重新编号 rank（从 1 开始）
func rerankAll(chunks []RetrievedChunk) {
	for i := range chunks {
		chunks[i].Rank = i + 1
	}
}
