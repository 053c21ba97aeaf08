package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/config"
	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/rag"
	"github.com/BaSui01/evalflow/registry"
	"github.com/BaSui01/evalflow/runners"
	"github.com/BaSui01/evalflow/scenario"
	"github.com/BaSui01/evalflow/scoring"
	"github.com/BaSui01/evalflow/types"
)

// plugins 内置执行单元、评分单元、报告单元与静态定义
type plugins struct {
	runners     *registry.RunnerRegistry
	scorers     *registry.ScorerRegistry
	reporters   *registry.ReporterRegistry
	definitions *registry.DefinitionRegistry
}

// newPlugins 注册全部内置插件。provider 为 nil 时 llm 模式不可用。
func newPlugins(cfg *config.Config, provider llm.Provider, logger *zap.Logger) (*plugins, error) {
	p := &plugins{
		runners:     registry.NewRunnerRegistry(),
		scorers:     registry.NewScorerRegistry(),
		reporters:   registry.NewReporterRegistry(),
		definitions: registry.NewDefinitionRegistry(),
	}

	// 执行单元
	pipelineOpts := []rag.PipelineOption{
		rag.WithDefaults(pipelineDefaults(cfg.RAG)),
		rag.WithReranker(rag.NewOverlapReranker()),
		rag.WithEmbedder(rag.NewHashingEmbedder(cfg.RAG.EmbeddingDimensions)),
		rag.WithTokenizer(rag.NewTokenizer(cfg.RAG.TokenizerModel, logger)),
	}
	if provider != nil {
		pipelineOpts = append(pipelineOpts, rag.WithProvider(provider))
	}
	for _, r := range []registry.Runner{
		runners.NewIntentRunner(provider, logger),
		runners.NewDialogueRunner(provider, logger),
		runners.NewMemoryRunner(provider, logger),
		rag.NewPipelineRunner(logger, pipelineOpts...),
	} {
		if err := p.runners.Register(r); err != nil {
			return nil, err
		}
	}

	// 评分单元
	scorers := []registry.Scorer{
		scoring.NewExactMatchScorer(scoring.ExactMatchConfig{
			Fields:        cfg.Scoring.MatchFields,
			CaseSensitive: cfg.Scoring.CaseSensitive,
			UseContains:   cfg.Scoring.UseContains,
		}),
		scoring.NewUsageScorer(scoring.UsageThresholds{
			LatencyMs: cfg.Scoring.LatencyThresholdMs,
			Tokens:    cfg.Scoring.TokenThreshold,
			Cost:      cfg.Scoring.CostThreshold,
		}),
		scoring.NewStepStatusScorer(),
		rag.NewCitationScorer(logger),
		rag.NewRetrievalScorer(logger),
	}
	if len(cfg.Scoring.Assertions) > 0 {
		assertions := make([]scoring.Assertion, 0, len(cfg.Scoring.Assertions))
		for _, a := range cfg.Scoring.Assertions {
			assertions = append(assertions, scoring.Assertion{Name: a.Name, Expr: a.Expr})
		}
		exprScorer, err := scoring.NewExprScorer(assertions...)
		if err != nil {
			return nil, fmt.Errorf("compile scoring assertions: %w", err)
		}
		scorers = append(scorers, exprScorer)
	}
	for _, s := range scorers {
		if err := p.scorers.Register(s); err != nil {
			return nil, err
		}
	}

	// 报告单元
	if err := p.reporters.Register(rag.NewEvidenceLinker(logger)); err != nil {
		return nil, err
	}

	if err := registerDefinitions(p.definitions); err != nil {
		return nil, err
	}
	return p, nil
}

// pipelineDefaults 把配置文件中的 RAG 默认值转成管线配置
func pipelineDefaults(cfg config.RAGConfig) rag.PipelineConfig {
	out := rag.DefaultPipelineConfig()
	if cfg.Chunking != "" {
		out.Chunking = rag.ChunkingStrategy(cfg.Chunking)
	}
	if cfg.ChunkSize > 0 {
		out.ChunkSize = cfg.ChunkSize
	}
	out.ChunkOverlap = cfg.ChunkOverlap
	if cfg.Retrieval != "" {
		out.Retrieval = cfg.Retrieval
	}
	out.TopK = cfg.TopK
	out.LexicalWeight = cfg.LexicalWeight
	out.VectorWeight = cfg.VectorWeight
	if cfg.BM25K1 > 0 {
		out.BM25K1 = cfg.BM25K1
	}
	if cfg.BM25B > 0 {
		out.BM25B = cfg.BM25B
	}
	out.Rerank = cfg.Rerank
	if cfg.Generator != "" {
		out.Generator = cfg.Generator
	}
	out.Model = cfg.Model
	out.Temperature = float32(cfg.Temperature)
	if cfg.MaxTokens > 0 {
		out.MaxTokens = cfg.MaxTokens
	}
	return out
}

// registerDefinitions 内置能力的静态说明
func registerDefinitions(defs *registry.DefinitionRegistry) error {
	tasks := []types.TaskDefinition{
		{
			ID:          "intent_classification",
			Name:        "Intent classification",
			Type:        types.CapabilityIntent,
			Description: "Classify a piece of user text into one of a configured set of intents.",
			Inputs:      []types.FieldSpec{{Name: "text", Type: "string", Required: true}},
			Outputs: []types.FieldSpec{
				{Name: "intent", Type: "string"},
				{Name: "confidence", Type: "number"},
			},
			SuccessCriteria: []string{"output.intent equals expected.intent"},
			Metrics:         []string{scoring.MetricExactMatch, scoring.MetricSimilarity},
		},
		{
			ID:          "dialogue_reply",
			Name:        "Dialogue reply",
			Type:        types.CapabilityDialogue,
			Description: "Produce the next assistant turn for a conversation.",
			Inputs:      []types.FieldSpec{{Name: "messages", Type: "array", Required: true}},
			Outputs:     []types.FieldSpec{{Name: "reply", Type: "string"}},
			Metrics:     []string{scoring.MetricSimilarity},
		},
		{
			ID:          "memory_extraction",
			Name:        "Memory extraction",
			Type:        types.CapabilityMemory,
			Description: "Extract durable key/value facts from user text.",
			Inputs:      []types.FieldSpec{{Name: "text", Type: "string", Required: true}},
			Outputs:     []types.FieldSpec{{Name: "facts", Type: "array"}},
			Metrics:     []string{scoring.MetricExactMatch},
		},
		{
			ID:          "rag_answer",
			Name:        "Retrieval-augmented answer",
			Type:        types.CapabilityRAG,
			Description: "Answer a query from supplied documents with per-sentence citations.",
			Inputs: []types.FieldSpec{
				{Name: "query", Type: "string", Required: true},
				{Name: "documents", Type: "array", Required: true},
				{Name: "top_k", Type: "integer"},
			},
			Outputs: []types.FieldSpec{
				{Name: "answer", Type: "string"},
				{Name: "sentences", Type: "array"},
				{Name: "chunks", Type: "array"},
			},
			SuccessCriteria: []string{"every citation references a retrieved chunk"},
			Metrics: []string{
				rag.MetricCitationPrecision, rag.MetricHallucinationRate,
				rag.MetricRetrievalPrecision, rag.MetricRetrievalRecall,
			},
		},
	}
	for _, d := range tasks {
		if err := defs.RegisterTask(d); err != nil {
			return err
		}
	}

	if err := defs.RegisterWorkflow(types.WorkflowDefinition{
		ID:          scenario.RunnerID,
		Name:        "Sequential scenario",
		Description: "Ordered steps with explicit input bindings; the first failing step fails the scenario.",
		Steps:       []string{"resolve_config", "bind_input", "execute", "record"},
	}); err != nil {
		return err
	}

	methods := []types.MethodDefinition{
		{ID: "intent_methods", Name: "Intent classification methods", TaskType: types.CapabilityIntent,
			Strategies: []string{runners.ModeRules, runners.ModeLLM}},
		{ID: "dialogue_methods", Name: "Dialogue reply methods", TaskType: types.CapabilityDialogue,
			Strategies: []string{runners.ModeTemplate, runners.ModeLLM}},
		{ID: "rag_retrieval", Name: "RAG retrieval strategies", TaskType: types.CapabilityRAG,
			Strategies: []string{rag.RetrievalLexical, rag.RetrievalVector, rag.RetrievalHybrid}},
		{ID: "rag_generation", Name: "RAG generation strategies", TaskType: types.CapabilityRAG,
			Strategies: []string{rag.GeneratorTemplate, rag.GeneratorLLM}},
	}
	for _, m := range methods {
		if err := defs.RegisterMethod(m); err != nil {
			return err
		}
	}
	return nil
}
