package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/types"
)

const (
	// RunnerID RAG 管线执行单元 ID
	RunnerID = "rag_pipeline"
	// Version 管线版本
	Version = "1.0.0"

	// DefaultTopK 请求与配置都未给出 top_k 时的默认值
	DefaultTopK = 5
)

// Retrieval 策略
const (
	RetrievalLexical = "lexical"
	RetrievalHybrid  = "hybrid"
	RetrievalVector  = "vector"
)

// Generator 策略
const (
	GeneratorTemplate = "template"
	GeneratorLLM      = "llm"
)

// 管线阶段名，出现在 trace 与失败信息中
const (
	stageInput    = "input"
	stageConfig   = "config"
	stageChunk    = "chunk"
	stageRetrieve = "retrieve"
	stageRerank   = "rerank"
	stageGenerate = "generate"
)

// PipelineConfig 单次调用的管线配置，对应任务配置 map 中的键
type PipelineConfig struct {
	Chunking      ChunkingStrategy `json:"chunking"`
	ChunkSize     int              `json:"chunk_size"`
	ChunkOverlap  int              `json:"chunk_overlap"`
	Retrieval     string           `json:"retrieval"`
	TopK          int              `json:"top_k"`
	LexicalWeight float64          `json:"lexical_weight"`
	VectorWeight  float64          `json:"vector_weight"`
	BM25K1        float64          `json:"bm25_k1"`
	BM25B         float64          `json:"bm25_b"`
	Rerank        bool             `json:"rerank"`
	Generator     string           `json:"generator"`
	Model         string           `json:"model"`
	Temperature   float32          `json:"temperature"`
	MaxTokens     int              `json:"max_tokens"`
}

// DefaultPipelineConfig 默认：整文档、词法检索、不重排、模板生成
func DefaultPipelineConfig() PipelineConfig {
	chunking := DefaultChunkingConfig()
	bm25 := DefaultBM25Config()
	hybrid := DefaultHybridConfig()
	return PipelineConfig{
		Chunking:      chunking.Strategy,
		ChunkSize:     chunking.ChunkSize,
		ChunkOverlap:  chunking.ChunkOverlap,
		Retrieval:     RetrievalLexical,
		LexicalWeight: hybrid.LexicalWeight,
		VectorWeight:  hybrid.VectorWeight,
		BM25K1:        bm25.K1,
		BM25B:         bm25.B,
		Generator:     GeneratorTemplate,
		MaxTokens:     1024,
	}
}

// Validate 校验配置
func (c PipelineConfig) Validate() error {
	if err := c.chunking().Validate(); err != nil {
		return err
	}
	switch c.Retrieval {
	case RetrievalLexical, RetrievalHybrid, RetrievalVector:
	default:
		return types.Errorf(types.ErrInvalidInput, "unknown retrieval strategy %q", c.Retrieval)
	}
	switch c.Generator {
	case GeneratorTemplate, GeneratorLLM:
	default:
		return types.Errorf(types.ErrInvalidInput, "unknown generator %q", c.Generator)
	}
	if c.TopK < 0 {
		return types.Errorf(types.ErrInvalidInput, "top_k must be positive, got %d", c.TopK)
	}
	if c.LexicalWeight < 0 || c.VectorWeight < 0 {
		return types.NewError(types.ErrInvalidInput, "retrieval weights must be non-negative")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return types.Errorf(types.ErrInvalidInput, "temperature must be in [0, 2], got %v", c.Temperature)
	}
	return nil
}

func (c PipelineConfig) chunking() ChunkingConfig {
	return ChunkingConfig{Strategy: c.Chunking, ChunkSize: c.ChunkSize, ChunkOverlap: c.ChunkOverlap}
}

// Overlay 以 raw 中出现的键覆盖当前配置
func (c PipelineConfig) Overlay(raw map[string]any) (PipelineConfig, error) {
	if len(raw) == 0 {
		return c, nil
	}
	out := c
	if err := types.DecodeInto(raw, &out); err != nil {
		return c, types.NewError(types.ErrInvalidInput, "decode rag config").WithCause(err)
	}
	return out, nil
}

// PipelineOption 管线可选依赖
type PipelineOption func(*PipelineRunner)

// WithReranker 注入重排序器；配置 rerank=true 时必须提供
func WithReranker(r Reranker) PipelineOption {
	return func(p *PipelineRunner) { p.reranker = r }
}

// WithProvider 注入文本生成后端（generator=llm 时使用）
func WithProvider(provider llm.Provider) PipelineOption {
	return func(p *PipelineRunner) { p.provider = provider }
}

// WithEmbedder 注入向量化器（retrieval=vector|hybrid 时使用）
func WithEmbedder(e Embedder) PipelineOption {
	return func(p *PipelineRunner) { p.embedder = e }
}

// WithTokenizer 注入分块使用的分词器
func WithTokenizer(t Tokenizer) PipelineOption {
	return func(p *PipelineRunner) { p.tokenizer = t }
}

// WithDefaults 替换默认配置
func WithDefaults(cfg PipelineConfig) PipelineOption {
	return func(p *PipelineRunner) { p.defaults = cfg }
}

// PipelineRunner RAG 执行单元：chunk -> retrieve -> (rerank) -> generate。
// 每次调用无状态，索引只在本次调用内存在。
type PipelineRunner struct {
	defaults  PipelineConfig
	reranker  Reranker
	provider  llm.Provider
	embedder  Embedder
	tokenizer Tokenizer
	logger    *zap.Logger
}

// NewPipelineRunner 创建管线执行单元
func NewPipelineRunner(logger *zap.Logger, opts ...PipelineOption) *PipelineRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &PipelineRunner{
		defaults: DefaultPipelineConfig(),
		logger:   logger.With(zap.String("component", "rag_pipeline")),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tokenizer == nil {
		p.tokenizer = SimpleTokenizer{}
	}
	return p
}

func (p *PipelineRunner) ID() string                 { return RunnerID }
func (p *PipelineRunner) Type() types.CapabilityType { return types.CapabilityRAG }
func (p *PipelineRunner) Version() string            { return Version }

// Output 管线主输出
type Output struct {
	Answer    string           `json:"answer"`
	Sentences []Sentence       `json:"sentences"`
	Chunks    []RetrievedChunk `json:"chunks"`
}

// Execute 执行一次检索增强生成。所有失败都以 failed 记录返回，失败信息带阶段名。
func (p *PipelineRunner) Execute(ctx context.Context, task *types.AtomicTask, config map[string]any) (*types.RunRecord, error) {
	rec := types.NewRunRecord(task, RunnerID, Version, config)
	tracer := types.NewTracer("")

	fail := func(stage string, err error) (*types.RunRecord, error) {
		tracer.Error("stage_failed", map[string]any{
			"stage": stage,
			"code":  string(types.GetErrorCode(err)),
			"error": err.Error(),
		})
		rec.Trace = tracer.Events()
		rec.Fail(fmt.Sprintf("%s stage failed: %v", stage, err), "", "")
		p.logger.Warn("rag pipeline failed",
			zap.String("task_id", rec.TaskID),
			zap.String("stage", stage),
			zap.Error(err))
		return rec, nil
	}

	if task == nil {
		return fail(stageInput, types.NewError(types.ErrInvalidInput, "nil task"))
	}
	in, err := DecodeInput(task.Input)
	if err != nil {
		return fail(stageInput, err)
	}
	cfg, err := p.defaults.Overlay(config)
	if err != nil {
		return fail(stageConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return fail(stageConfig, err)
	}
	if cfg.Rerank && p.reranker == nil {
		return fail(stageConfig, types.NewError(types.ErrRerankerMissing, "rerank enabled but no reranker supplied"))
	}

	topK := DefaultTopK
	switch {
	case in.TopK > 0:
		topK = in.TopK
	case cfg.TopK > 0:
		topK = cfg.TopK
	}

	// chunk
	chunks := NewChunker(cfg.chunking(), p.tokenizer, p.logger).ChunkAll(in.Documents)
	tracer.Info("chunked", map[string]any{
		"strategy":  string(cfg.Chunking),
		"documents": len(in.Documents),
		"chunks":    len(chunks),
	})

	// retrieve
	retriever := p.newRetriever(cfg)
	if err := retriever.Index(ctx, chunks); err != nil {
		return fail(stageRetrieve, err)
	}
	retrieved, err := retriever.Retrieve(ctx, in.Query, topK)
	if err != nil {
		return fail(stageRetrieve, err)
	}
	rec.AddArtifact(types.SchemaRAGRetrieved, "", retrieved)
	tracer.Info("retrieved", map[string]any{
		"retriever": retriever.Name(),
		"top_k":     topK,
		"chunk_ids": ChunkIDs(retrieved),
	})

	// rerank
	selected := retrieved
	if cfg.Rerank {
		reranked, err := p.reranker.Rerank(ctx, in.Query, retrieved)
		if err != nil {
			return fail(stageRerank, err)
		}
		rec.AddArtifact(types.SchemaRAGReranked, "", reranked)
		tracer.Info("reranked", map[string]any{
			"reranker":  p.reranker.Name(),
			"chunk_ids": ChunkIDs(reranked),
		})
		selected = reranked
	}

	// generate
	generator, err := p.newGenerator(cfg)
	if err != nil {
		return fail(stageGenerate, err)
	}
	result, err := generator.Generate(ctx, GenerateRequest{Query: in.Query, Chunks: selected})
	if result != nil {
		rec.Metrics.TokensUsed += result.TokensUsed
		rec.Metrics.Cost += result.Cost
	}
	if err != nil {
		if result != nil {
			tracer.Warn("generation_attempts", map[string]any{"attempts": result.Attempts})
		}
		return fail(stageGenerate, err)
	}
	rec.AddArtifact(types.SchemaRAGGenerated, "", result.Generation)
	tracer.Info("generated", map[string]any{
		"generator": generator.Name(),
		"attempts":  result.Attempts,
		"sentences": len(result.Generation.Sentences),
	})

	output, err := types.ToMap(Output{
		Answer:    result.Generation.Answer,
		Sentences: result.Generation.Sentences,
		Chunks:    selected,
	})
	if err != nil {
		return fail(stageGenerate, types.NewError(types.ErrInternalError, "encode output").WithCause(err))
	}

	rec.Trace = tracer.Events()
	rec.Complete(output)
	return rec, nil
}

func (p *PipelineRunner) newRetriever(cfg PipelineConfig) Retriever {
	bm25 := BM25Config{K1: cfg.BM25K1, B: cfg.BM25B}
	switch cfg.Retrieval {
	case RetrievalVector:
		return NewVectorRetriever(p.embedder, p.logger)
	case RetrievalHybrid:
		return NewHybridRetriever(
			HybridConfig{LexicalWeight: cfg.LexicalWeight, VectorWeight: cfg.VectorWeight},
			NewLexicalRetriever(bm25, p.logger),
			NewVectorRetriever(p.embedder, p.logger),
			p.logger,
		)
	default:
		return NewLexicalRetriever(bm25, p.logger)
	}
}

func (p *PipelineRunner) newGenerator(cfg PipelineConfig) (Generator, error) {
	if cfg.Generator == GeneratorLLM {
		if p.provider == nil {
			return nil, types.NewError(types.ErrInvalidInput, "generator llm requires a text-generation provider")
		}
		return NewLLMGenerator(p.provider, LLMGeneratorConfig{
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, p.logger), nil
	}
	return NewTemplateGenerator(), nil
}
